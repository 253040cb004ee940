// Package github はGitHubリポジトリからREADME、ファイルツリー、リリース情報を取得する。
package github

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidRepoURL はURLがgithub.com/{owner}/{repo}形式でないことを示す。
	ErrInvalidRepoURL = errors.New("invalid GitHub URL. format: https://github.com/owner/repo")
	// ErrTokenRejected はGitHubがアクセストークンを拒否したことを示す。
	ErrTokenRejected = errors.New("GitHub token expired or invalid")
	// ErrRepoNotFound はリポジトリが存在しないか、トークンで参照できないことを示す。
	ErrRepoNotFound = errors.New("repository not found or not accessible")
)

var repoPattern = regexp.MustCompile(`github\.com/([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+)`)

// Repo はGitHubリポジトリの識別子。
type Repo struct {
	Owner string
	Name  string
}

// String は "owner/name" 形式を返す。
func (r Repo) String() string {
	return r.Owner + "/" + r.Name
}

// ParseRepoURL はURLからowner/repoを取り出す。末尾の.gitは除去する。
func ParseRepoURL(raw string) (Repo, error) {
	m := repoPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return Repo{}, ErrInvalidRepoURL
	}
	name := strings.TrimSuffix(m[2], ".git")
	if name == "" || name == "." || name == ".." || m[1] == "." || m[1] == ".." {
		return Repo{}, fmt.Errorf("%w: %s", ErrInvalidRepoURL, raw)
	}
	return Repo{Owner: m[1], Name: name}, nil
}
