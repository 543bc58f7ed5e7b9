// Package azdo is a minimal Azure DevOps Git REST client covering what the
// review engine needs: pull-request metadata, iteration file changes, and
// comment threads.
package azdo

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/reviewloop/reviewloop/internal/models"
)

const apiVersion = "6.0"

// Client talks to the Azure DevOps Git API with PAT basic auth. All calls
// are synchronous and return an error on non-2xx responses.
type Client struct {
	organization string
	project      string
	pat          string
	baseURL      string
	httpClient   *http.Client
}

// New creates a client. Organization, project, and PAT are all required.
func New(organization, project, pat string) (*Client, error) {
	if organization == "" || project == "" || pat == "" {
		return nil, fmt.Errorf("azure devops organization, project, and PAT are required")
	}
	return &Client{
		organization: organization,
		project:      project,
		pat:          pat,
		baseURL:      fmt.Sprintf("https://dev.azure.com/%s/%s/_apis/git", url.PathEscape(organization), url.PathEscape(project)),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// WithBaseURL overrides the API base URL. Used by tests against httptest
// servers.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = base
	return c
}

type prResponse struct {
	PullRequestID int    `json:"pullRequestId"`
	Title         string `json:"title"`
	Repository    struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"repository"`
	LastMergeSourceCommit struct {
		CommitID string `json:"commitId"`
	} `json:"lastMergeSourceCommit"`
	LastMergeTargetCommit struct {
		CommitID string `json:"commitId"`
	} `json:"lastMergeTargetCommit"`
}

// GetPullRequest fetches pull-request metadata by id.
func (c *Client) GetPullRequest(ctx context.Context, pullRequestID int) (*models.PullRequest, error) {
	var resp prResponse
	u := fmt.Sprintf("%s/pullrequests/%d?api-version=%s", c.baseURL, pullRequestID, apiVersion)
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return nil, fmt.Errorf("get pull request %d: %w", pullRequestID, err)
	}
	return &models.PullRequest{
		ID:           resp.PullRequestID,
		RepositoryID: resp.Repository.ID,
		Repository:   resp.Repository.Name,
		Title:        resp.Title,
		SourceCommit: resp.LastMergeSourceCommit.CommitID,
		TargetCommit: resp.LastMergeTargetCommit.CommitID,
	}, nil
}

// ListIterations returns the push iterations of a pull request.
func (c *Client) ListIterations(ctx context.Context, repoID string, pullRequestID int) ([]models.PRIteration, error) {
	var resp struct {
		Value []struct {
			ID int `json:"id"`
		} `json:"value"`
	}
	u := fmt.Sprintf("%s/repositories/%s/pullRequests/%d/iterations?api-version=%s", c.baseURL, url.PathEscape(repoID), pullRequestID, apiVersion)
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return nil, fmt.Errorf("list iterations: %w", err)
	}
	iterations := make([]models.PRIteration, len(resp.Value))
	for i, it := range resp.Value {
		iterations[i] = models.PRIteration{ID: it.ID}
	}
	return iterations, nil
}

// ChangedFiles returns the files changed in the newest iteration of the
// pull request, with old and new content fetched from the merge target and
// source commits. Old content is empty for added files.
func (c *Client) ChangedFiles(ctx context.Context, pr *models.PullRequest) ([]models.FileChange, error) {
	iterations, err := c.ListIterations(ctx, pr.RepositoryID, pr.ID)
	if err != nil {
		return nil, err
	}
	if len(iterations) == 0 {
		return nil, fmt.Errorf("no iterations found for pull request %d", pr.ID)
	}
	latest := iterations[0]
	for _, it := range iterations[1:] {
		if it.ID > latest.ID {
			latest = it
		}
	}

	var resp struct {
		Changes []struct {
			Item struct {
				Path        string `json:"path"`
				IsFolder    bool   `json:"isFolder"`
				GitObjectID string `json:"objectId"`
			} `json:"item"`
			ChangeType string `json:"changeType"`
		} `json:"changeEntries"`
	}
	u := fmt.Sprintf("%s/repositories/%s/pullRequests/%d/iterations/%d/changes?api-version=%s",
		c.baseURL, url.PathEscape(pr.RepositoryID), pr.ID, latest.ID, apiVersion)
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return nil, fmt.Errorf("get iteration changes: %w", err)
	}

	var changes []models.FileChange
	for _, ch := range resp.Changes {
		if ch.Item.IsFolder || ch.ChangeType == "delete" {
			continue
		}
		change := models.FileChange{Path: ch.Item.Path, ChangeType: ch.ChangeType}

		content, err := c.FileContent(ctx, pr.RepositoryID, ch.Item.Path, pr.SourceCommit)
		if err != nil {
			return nil, fmt.Errorf("fetch content of %s: %w", ch.Item.Path, err)
		}
		change.NewContent = content

		if ch.ChangeType != "add" {
			// Best-effort: the file may not exist on the target branch.
			if old, err := c.FileContent(ctx, pr.RepositoryID, ch.Item.Path, pr.TargetCommit); err == nil {
				change.OldContent = old
			}
		}
		changes = append(changes, change)
	}
	return changes, nil
}

// FileContent fetches a file's raw content at a specific commit.
func (c *Client) FileContent(ctx context.Context, repoID, path, commitID string) (string, error) {
	q := url.Values{}
	q.Set("path", path)
	q.Set("versionDescriptor.version", commitID)
	q.Set("versionDescriptor.versionType", "commit")
	q.Set("includeContent", "true")
	q.Set("api-version", apiVersion)

	var resp struct {
		Content string `json:"content"`
	}
	u := fmt.Sprintf("%s/repositories/%s/items?%s", c.baseURL, url.PathEscape(repoID), q.Encode())
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return "", err
	}
	return resp.Content, nil
}

type threadComment struct {
	ParentCommentID int    `json:"parentCommentId"`
	Content         string `json:"content"`
	CommentType     int    `json:"commentType"`
}

type threadContext struct {
	FilePath       string       `json:"filePath"`
	RightFileStart filePosition `json:"rightFileStart"`
	RightFileEnd   filePosition `json:"rightFileEnd"`
}

type filePosition struct {
	Line   int `json:"line"`
	Offset int `json:"offset"`
}

// CreateThread opens a new comment thread, anchored to filePath/line when a
// positive line is given and file-level otherwise. Returns the thread id.
func (c *Client) CreateThread(ctx context.Context, repoID string, pullRequestID int, content, filePath string, line int) (int, error) {
	body := map[string]any{
		"comments": []threadComment{{ParentCommentID: 0, Content: content, CommentType: 1}},
		"status":   string(models.ThreadStatusActive),
	}
	if filePath != "" && line > 0 {
		body["threadContext"] = threadContext{
			FilePath:       filePath,
			RightFileStart: filePosition{Line: line, Offset: 1},
			RightFileEnd:   filePosition{Line: line, Offset: 1},
		}
	}

	var resp struct {
		ID int `json:"id"`
	}
	u := fmt.Sprintf("%s/repositories/%s/pullRequests/%d/threads?api-version=%s", c.baseURL, url.PathEscape(repoID), pullRequestID, apiVersion)
	if err := c.doJSON(ctx, http.MethodPost, u, body, &resp); err != nil {
		return 0, fmt.Errorf("create thread: %w", err)
	}
	return resp.ID, nil
}

// AddComment posts a reply on an existing thread.
func (c *Client) AddComment(ctx context.Context, repoID string, pullRequestID, threadID int, content string) error {
	body := threadComment{ParentCommentID: 1, Content: content, CommentType: 1}
	u := fmt.Sprintf("%s/repositories/%s/pullRequests/%d/threads/%d/comments?api-version=%s",
		c.baseURL, url.PathEscape(repoID), pullRequestID, threadID, apiVersion)
	if err := c.doJSON(ctx, http.MethodPost, u, body, nil); err != nil {
		return fmt.Errorf("add comment to thread %d: %w", threadID, err)
	}
	return nil
}

// SetThreadStatus patches a thread's status.
func (c *Client) SetThreadStatus(ctx context.Context, repoID string, pullRequestID, threadID int, status models.ThreadStatus) error {
	body := map[string]string{"status": string(status)}
	u := fmt.Sprintf("%s/repositories/%s/pullRequests/%d/threads/%d?api-version=%s",
		c.baseURL, url.PathEscape(repoID), pullRequestID, threadID, apiVersion)
	if err := c.doJSON(ctx, http.MethodPatch, u, body, nil); err != nil {
		return fmt.Errorf("set thread %d status: %w", threadID, err)
	}
	return nil
}

// ListThreads returns snapshots of all comment threads on a pull request.
func (c *Client) ListThreads(ctx context.Context, repoID string, pullRequestID int) ([]models.Thread, error) {
	var resp struct {
		Value []struct {
			ID            int    `json:"id"`
			Status        string `json:"status"`
			ThreadContext *struct {
				FilePath       string       `json:"filePath"`
				RightFileStart filePosition `json:"rightFileStart"`
			} `json:"threadContext"`
		} `json:"value"`
	}
	u := fmt.Sprintf("%s/repositories/%s/pullRequests/%d/threads?api-version=%s", c.baseURL, url.PathEscape(repoID), pullRequestID, apiVersion)
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}

	threads := make([]models.Thread, 0, len(resp.Value))
	for _, t := range resp.Value {
		thread := models.Thread{ID: t.ID, Status: models.ThreadStatus(t.Status)}
		if t.ThreadContext != nil {
			thread.FilePath = t.ThreadContext.FilePath
			thread.Line = t.ThreadContext.RightFileStart.Line
		}
		threads = append(threads, thread)
	}
	return threads, nil
}

// doJSON performs one request with PAT auth, encoding body and decoding the
// response into out when non-nil.
func (c *Client) doJSON(ctx context.Context, method, rawURL string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(":"+c.pat)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: %s: %s", method, rawURL, resp.Status, bytes.TrimSpace(snippet))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
