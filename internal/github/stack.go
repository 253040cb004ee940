package github

import (
	"fmt"
	"path"
	"strings"
)

// stackMarkers はファイル名から技術スタックを推定する対応表。
var stackMarkers = []struct {
	file  string
	stack string
}{
	{"go.mod", "Go"},
	{"requirements.txt", "Python"},
	{"pyproject.toml", "Python"},
	{"package.json", "JavaScript/Node.js"},
	{"Cargo.toml", "Rust"},
	{"pom.xml", "Java"},
	{"build.gradle", "Java"},
	{"Gemfile", "Ruby"},
	{"composer.json", "PHP"},
}

// DetectStack はファイル一覧から技術スタックを推定する。結果は重複なし、検出順。
func DetectStack(files []string) []string {
	var stack []string
	seen := make(map[string]bool)
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			stack = append(stack, s)
		}
	}

	hasNode := false
	for _, marker := range stackMarkers {
		for _, f := range files {
			if path.Base(f) == marker.file {
				add(marker.stack)
				if marker.file == "package.json" {
					hasNode = true
				}
				break
			}
		}
	}
	if hasNode {
		for _, f := range files {
			base := path.Base(f)
			if strings.HasPrefix(base, "next.config.") {
				add("Next.js")
				break
			}
		}
	}
	return stack
}

// CollectEvidence はファイル構成から読み取れる根拠付きの特徴を返す。
// 各項目の末尾には根拠となるパスを角括弧で付ける。
func CollectEvidence(files []string) []string {
	var evidence []string

	for _, f := range files {
		if strings.Contains(f, "docker-compose") || strings.HasPrefix(path.Base(f), "compose.y") {
			evidence = append(evidence, fmt.Sprintf("Containerized / Easy Deploy [%s]", f))
			break
		}
	}
	for _, f := range files {
		if strings.HasPrefix(f, ".github/workflows/") {
			evidence = append(evidence, "CI/CD Pipeline Active [.github/workflows]")
			break
		}
	}

	tests := 0
	for _, f := range files {
		if isTestFile(f) {
			tests++
		}
	}
	if tests > 0 {
		evidence = append(evidence, fmt.Sprintf("Includes %d Test Files", tests))
	}
	return evidence
}

func isTestFile(f string) bool {
	base := path.Base(f)
	switch {
	case strings.HasSuffix(base, "_test.go"):
		return true
	case strings.HasPrefix(base, "test_") && strings.HasSuffix(base, ".py"):
		return true
	case strings.Contains(base, ".test.") || strings.Contains(base, ".spec."):
		return true
	}
	return false
}
