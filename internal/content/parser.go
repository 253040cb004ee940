package content

import (
	"strings"

	"github.com/repo2viral/repo2viral/internal/model"
)

// LLM出力のセクション見出し
const (
	headerTwitter  = "### TWITTER THREAD"
	headerLinkedIn = "### LINKEDIN POST"
	headerBlog     = "### BLOG INTRO"
	headerSlides   = "### CAROUSEL SLIDES"
)

var headers = []string{headerTwitter, headerLinkedIn, headerBlog, headerSlides}

// ParseSections はLLMの出力を見出しごとに分割してContentにする。
// 見出しが欠けているセクションは空文字列になる。
func ParseSections(text string) model.Content {
	sections := splitSections(text)

	return model.Content{
		TwitterThread: sections[headerTwitter],
		LinkedInPost:  sections[headerLinkedIn],
		BlogIntro:     sections[headerBlog],
		Slides:        parseSlides(sections[headerSlides]),
	}
}

// splitSections は見出し行から次の見出し行までを本文として切り出す。
func splitSections(text string) map[string]string {
	out := make(map[string]string)
	var current string
	var body []string

	flush := func() {
		if current != "" {
			out[current] = strings.TrimSpace(strings.Join(body, "\n"))
		}
	}

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if h, ok := matchHeader(line); ok {
			flush()
			current = h
			body = body[:0]
			continue
		}
		if current != "" {
			body = append(body, line)
		}
	}
	flush()
	return out
}

func matchHeader(line string) (string, bool) {
	trimmed := strings.ToUpper(strings.Trim(strings.TrimSpace(line), "*:"))
	for _, h := range headers {
		if trimmed == h {
			return h, true
		}
	}
	return "", false
}

// parseSlides は "Title | Body" 形式の行をスライドにする。
// 行頭の番号や箇条書き記号は除去し、区切りのない行は無視する。
func parseSlides(section string) []model.Slide {
	var slides []model.Slide
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789.) ")
		title, body, ok := strings.Cut(line, "|")
		if !ok {
			continue
		}
		title = strings.TrimSpace(title)
		body = strings.TrimSpace(body)
		if title == "" || body == "" {
			continue
		}
		slides = append(slides, model.Slide{Title: title, Body: body})
	}
	return slides
}
