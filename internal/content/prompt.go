package content

import (
	"fmt"
	"strings"

	"github.com/repo2viral/repo2viral/internal/github"
	"github.com/repo2viral/repo2viral/internal/security"
)

// MaxReadmeRunes はプロンプトに含めるREADMEの最大文字数。
const MaxReadmeRunes = 8000

// maxPromptFiles はプロンプトに列挙するファイルパスの上限。
const maxPromptFiles = 100

const systemPromptBase = `Role: Expert Developer Advocate.
Objective: Analyze the provided code context and output 4 distinct pieces of content.
Output format must be strictly separated by these headers:
### TWITTER THREAD
### LINKEDIN POST
### BLOG INTRO
### CAROUSEL SLIDES

Instructions:
1. **Twitter Thread**: Create a compelling thread (5-8 tweets). Hook the reader in the first tweet. Focus on the "Problem" and "Solution" provided by the tool. End with a call to action (link to repo).
2. **LinkedIn Post**: Write a professional yet engaging post. Focus on the technical implementation, the architecture, and the value proposition. Use bullet points for key features.
3. **Blog Intro**: Write an engaging introduction for a technical blog post about this repository. Hook the reader with a relatable struggle or an exciting new technology.
4. **Carousel Slides**: 5-7 slides, one per line, formatted exactly as "Title | Body".

Only state facts supported by the repository context. Do not invent features.`

// BuildPrompt はペルソナとリポジトリ情報からsystem/userメッセージを組み立てる。
func BuildPrompt(p Persona, snap *github.Snapshot, sanitizer security.TextSanitizerService) (system, user string) {
	var sb strings.Builder
	sb.WriteString(systemPromptBase)
	sb.WriteString("\n\nPersona: ")
	sb.WriteString(p.Name)
	if v := strings.TrimSpace(p.Voice); v != "" {
		sb.WriteString("\nVoice: ")
		sb.WriteString(v)
	}
	system = sb.String()

	sb.Reset()
	fmt.Fprintf(&sb, "Repository: %s\nURL: https://github.com/%s\n", snap.Repo, snap.Repo)
	if len(snap.TechStack) > 0 {
		fmt.Fprintf(&sb, "Tech stack: %s\n", strings.Join(snap.TechStack, ", "))
	}
	if len(snap.Evidence) > 0 {
		sb.WriteString("Evidence:\n")
		for _, e := range snap.Evidence {
			fmt.Fprintf(&sb, "- %s\n", e)
		}
	}
	if len(snap.Releases) > 0 {
		sb.WriteString("Recent releases:\n")
		for _, r := range snap.Releases {
			fmt.Fprintf(&sb, "- %s\n", r)
		}
	}
	if len(snap.Files) > 0 {
		files := snap.Files
		if len(files) > maxPromptFiles {
			files = files[:maxPromptFiles]
		}
		fmt.Fprintf(&sb, "File structure (%d of %d files):\n", len(files), snap.TotalFiles)
		for _, f := range files {
			fmt.Fprintf(&sb, "%s\n", f)
		}
	}

	readme := snap.Readme
	if sanitizer != nil {
		readme = sanitizer.Sanitize(readme, MaxReadmeRunes)
	}
	sb.WriteString("\nHere is the Repository README:\n")
	sb.WriteString(readme)
	user = sb.String()

	return system, user
}
