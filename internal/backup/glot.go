package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"folio/internal/models"
)

// DefaultGlotSnippetURL is prefixed to the snippet id in returned URLs.
const DefaultGlotSnippetURL = "https://glot.io/snippets/"

type glotFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type glotSnippet struct {
	Language string     `json:"language"`
	Title    string     `json:"title"`
	Public   bool       `json:"public"`
	Files    []glotFile `json:"files"`
}

// Glot posts snapshots to the glot.io snippets API, one file per page.
type Glot struct {
	APIURL     string
	SnippetURL string
	Token      string
	Client     *http.Client
}

// NewGlot creates a glot target posting to apiURL.
func NewGlot(apiURL, token string) *Glot {
	return &Glot{
		APIURL:     apiURL,
		SnippetURL: DefaultGlotSnippetURL,
		Token:      token,
		Client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Upload creates one public snippet holding every page.
func (g *Glot) Upload(ctx context.Context, pages []models.Page) (string, error) {
	snippet := glotSnippet{
		Language: "plaintext",
		Title:    "wiki-backup",
		Public:   true,
		Files:    make([]glotFile, 0, len(pages)),
	}
	for _, p := range pages {
		snippet.Files = append(snippet.Files, glotFile{Name: p.Name, Content: p.Content})
	}

	body, err := json.Marshal(snippet)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.APIURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.Token != "" {
		req.Header.Set("Authorization", "Token "+g.Token)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: glot returned %s: %s", ErrUpstream, resp.Status, strings.TrimSpace(string(msg)))
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil || created.ID == "" {
		return "", fmt.Errorf("%w: unexpected glot response", ErrUpstream)
	}
	return g.SnippetURL + created.ID, nil
}
