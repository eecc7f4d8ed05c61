package citation

import (
	"net/url"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const (
	DefaultBlobHostSuffix = ".blob.core.windows.net"
	DefaultFilePathPrefix = "/api/v1/files"
)

// LinkRewriter points the leading `[title](url)` link of a citation body at
// the same-origin file endpoint when the url lives in blob storage.
type LinkRewriter struct {
	BlobHostSuffixes []string
	FilePathPrefix   string
	md               goldmark.Markdown
}

func NewLinkRewriter(blobHostSuffixes []string, filePathPrefix string) *LinkRewriter {
	suffixes := make([]string, 0, len(blobHostSuffixes))
	for _, s := range blobHostSuffixes {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			suffixes = append(suffixes, s)
		}
	}
	if len(suffixes) == 0 {
		suffixes = []string{DefaultBlobHostSuffix}
	}
	if filePathPrefix == "" {
		filePathPrefix = DefaultFilePathPrefix
	}
	return &LinkRewriter{
		BlobHostSuffixes: suffixes,
		FilePathPrefix:   strings.TrimSuffix(filePathPrefix, "/"),
		md:               goldmark.New(),
	}
}

// Rewrite returns content with its leading link retargeted, or content as is
// when there is nothing to rewrite.
func (r *LinkRewriter) Rewrite(content string) string {
	dest, ok := r.leadingLink(content)
	if !ok {
		return content
	}
	target, ok := r.RewriteURL(dest)
	if !ok {
		return content
	}
	return strings.Replace(content, "]("+dest, "]("+target, 1)
}

// RewriteURL maps a blob storage url to its file endpoint path. ok is false
// when raw is not a blob url, cannot be parsed, or wraps an absolute url.
func (r *LinkRewriter) RewriteURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	if !r.isBlobHost(u.Hostname()) {
		return "", false
	}
	segments := strings.Split(strings.TrimPrefix(u.EscapedPath(), "/"), "/")
	if len(segments) < 2 {
		return "", false
	}
	// first segment is the container name
	rest := strings.Join(segments[1:], "/")
	if rest == "" {
		return "", false
	}
	if isAbsoluteURL(rest) {
		return "", false
	}
	return r.FilePathPrefix + "/" + rest, true
}

func (r *LinkRewriter) isBlobHost(host string) bool {
	host = strings.ToLower(host)
	for _, suffix := range r.BlobHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

func (r *LinkRewriter) leadingLink(content string) (string, bool) {
	source := []byte(content)
	doc := r.md.Parser().Parse(text.NewReader(source))
	first := doc.FirstChild()
	if first == nil || first.Kind() != ast.KindParagraph {
		return "", false
	}
	link, ok := first.FirstChild().(*ast.Link)
	if !ok || len(link.Destination) == 0 {
		return "", false
	}
	return string(link.Destination), true
}

func isAbsoluteURL(escapedPath string) bool {
	unescaped, err := url.PathUnescape(escapedPath)
	if err != nil {
		unescaped = escapedPath
	}
	lower := strings.ToLower(unescaped)
	if !strings.HasPrefix(lower, "http:/") && !strings.HasPrefix(lower, "https:/") {
		return false
	}
	u, err := url.Parse(unescaped)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}
