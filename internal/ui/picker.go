package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/starford/postdesk/internal/postservice"
)

// ErrNoChoice is returned when the user picks nothing.
var ErrNoChoice = errors.New("no post selected")

// PickPost lists items on the diagnostic writer and reads a choice from in:
// either a row number or text matching exactly one title or slug.
func (p *Printer) PickPost(in io.Reader, items []postservice.PostListItem) (postservice.PostListItem, error) {
	if len(items) == 0 {
		return postservice.PostListItem{}, ErrNoChoice
	}
	width := len(strconv.Itoa(len(items)))
	for i, it := range items {
		mark := DimStyle.Render(DraftMark)
		if it.Published {
			mark = SuccessStyle.Render(PublishedMark)
		}
		fmt.Fprintf(p.errOut, "%*d %s %s %s\n", width, i+1, mark, it.Title, DimStyle.Render(it.Slug))
	}
	fmt.Fprint(p.errOut, BoldStyle.Render("Post to edit (number or title): "))

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return postservice.PostListItem{}, err
	}
	answer := strings.TrimSpace(line)
	if answer == "" {
		return postservice.PostListItem{}, ErrNoChoice
	}
	if n, err := strconv.Atoi(answer); err == nil {
		if n < 1 || n > len(items) {
			return postservice.PostListItem{}, fmt.Errorf("choice %d is out of range 1-%d", n, len(items))
		}
		return items[n-1], nil
	}

	needle := strings.ToLower(answer)
	var matches []postservice.PostListItem
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.Title), needle) || strings.Contains(strings.ToLower(it.Slug), needle) {
			matches = append(matches, it)
		}
	}
	switch len(matches) {
	case 0:
		return postservice.PostListItem{}, fmt.Errorf("no post matches %q", answer)
	case 1:
		return matches[0], nil
	default:
		return postservice.PostListItem{}, fmt.Errorf("%d posts match %q; be more specific", len(matches), answer)
	}
}
