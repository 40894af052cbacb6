package mcpserver

// PostFormatContract describes the document format used when reading and
// updating posts through the MCP tools.
const PostFormatContract = `# Postdesk Post Format

Posts are exchanged as a single Markdown document with a YAML front-matter
block that carries the title, followed by the body.

` + "```" + `markdown
---
title: Human-readable title
---
Body text in Markdown or MDX.
` + "```" + `

## Rules

1. The front-matter block starts on the first line with ` + "`---`" + ` and
   ends with the next line that starts with ` + "`---`" + `.
2. ` + "`title`" + ` is the only field that is sent to the platform. Other keys
   are ignored.
3. Everything after the closing delimiter is the body, byte for byte.
4. When the title is missing or empty the post keeps its current title.
5. A document without a front-matter block is treated as body only.
6. Updating a post replaces its whole body; read it first and edit the
   returned document.
7. Publishing is a separate step (` + "`publish_post`" + `); updating never
   publishes or unpublishes.

## Videos

Upload a local video with ` + "`upload_video`" + ` and follow its processing
with ` + "`video_status`" + `. A video is usable once its status view is
` + "`ready`" + `.
`
