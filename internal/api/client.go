package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	httpTimeoutEnvKey  = "MOODBOARD_HTTP_TIMEOUT"
)

// Client is a simple HTTP client for the moodboard API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: httpTimeoutFromEnv()},
	}
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	return nil
}

func (c *Client) GetInfo(ctx context.Context) (InfoResponse, error) {
	var resp InfoResponse
	_, err := c.do(ctx, http.MethodGet, "/info", nil, nil, &resp)
	return resp, err
}

// SaveBoard stores boardData under boardID.
func (c *Client) SaveBoard(ctx context.Context, boardID string, boardData json.RawMessage) (SaveBoardResponse, error) {
	var resp SaveBoardResponse
	encodedID, err := json.Marshal(boardID)
	if err != nil {
		return resp, err
	}
	req := SaveBoardRequest{BoardID: encodedID, BoardData: boardData}
	_, err = c.do(ctx, http.MethodPost, "/moodboard/save", nil, req, &resp)
	return resp, err
}

// LoadBoard returns a board, creating an empty one if it does not exist.
func (c *Client) LoadBoard(ctx context.Context, boardID string) (BoardResponse, error) {
	var resp BoardResponse
	_, err := c.do(ctx, http.MethodGet, "/moodboard/load/"+url.PathEscape(boardID), nil, nil, &resp)
	return resp, err
}

func (c *Client) ListBoards(ctx context.Context) ([]BoardSummary, error) {
	var resp []BoardSummary
	_, err := c.do(ctx, http.MethodGet, "/moodboard/list", nil, nil, &resp)
	return resp, err
}

func (c *Client) ShowBoard(ctx context.Context, boardID string) (ShowBoardResponse, error) {
	var resp ShowBoardResponse
	_, err := c.do(ctx, http.MethodGet, "/moodboard/show/"+url.PathEscape(boardID), nil, nil, &resp)
	return resp, err
}

func (c *Client) DeleteBoard(ctx context.Context, boardID string, cleanupImages bool) (string, error) {
	query := url.Values{}
	if cleanupImages {
		query.Set("cleanup_images", "true")
	}
	env, err := c.do(ctx, http.MethodDelete, "/moodboard/delete/"+url.PathEscape(boardID), query, nil, nil)
	return env.Message, err
}

func (c *Client) DuplicateBoard(ctx context.Context, boardID string) (BoardResponse, error) {
	var resp BoardResponse
	_, err := c.do(ctx, http.MethodPost, "/moodboard/duplicate/"+url.PathEscape(boardID), nil, nil, &resp)
	return resp, err
}

func (c *Client) BoardImageStats(ctx context.Context, boardID string) (BoardImageStats, error) {
	var resp BoardImageStats
	_, err := c.do(ctx, http.MethodGet, "/moodboard/"+url.PathEscape(boardID)+"/images/stats", nil, nil, &resp)
	return resp, err
}

// ImageUpload describes optional metadata sent with an image upload.
type ImageUpload struct {
	Filename string
	Name     string
	Width    int
	Height   int
}

// UploadImage sends image bytes as multipart form field "image".
func (c *Client) UploadImage(ctx context.Context, in ImageUpload, content io.Reader) (ImageUploadResponse, error) {
	var resp ImageUploadResponse
	fields := map[string]string{}
	if in.Name != "" {
		fields["name"] = in.Name
	}
	if in.Width > 0 {
		fields["width"] = strconv.Itoa(in.Width)
	}
	if in.Height > 0 {
		fields["height"] = strconv.Itoa(in.Height)
	}
	err := c.upload(ctx, "/images/upload", "image", in.Filename, fields, content, &resp)
	return resp, err
}

func (c *Client) ListImages(ctx context.Context, query url.Values) ([]ImageResponse, *Pagination, error) {
	var resp []ImageResponse
	env, err := c.do(ctx, http.MethodGet, "/images", query, nil, &resp)
	return resp, env.Pagination, err
}

func (c *Client) GetImage(ctx context.Context, id string) (ImageResponse, error) {
	var resp ImageResponse
	_, err := c.do(ctx, http.MethodGet, "/images/"+url.PathEscape(id), nil, nil, &resp)
	return resp, err
}

// DownloadImage streams image bytes to w and returns the content type.
func (c *Client) DownloadImage(ctx context.Context, id string, w io.Writer) (string, error) {
	resp, err := c.stream(ctx, "/images/"+url.PathEscape(id)+"/file", w)
	if err != nil {
		return "", err
	}
	return resp.Header.Get("Content-Type"), nil
}

func (c *Client) DeleteImage(ctx context.Context, id string, force bool) (DeleteResponse, error) {
	var resp DeleteResponse
	query := url.Values{}
	if force {
		query.Set("force", "true")
	}
	_, err := c.do(ctx, http.MethodDelete, "/images/"+url.PathEscape(id), query, nil, &resp)
	return resp, err
}

func (c *Client) BulkDeleteImages(ctx context.Context, ids []string) (BulkDeleteResponse, error) {
	var resp BulkDeleteResponse
	_, err := c.do(ctx, http.MethodPost, "/images/bulk-delete", nil, BulkDeleteRequest{IDs: ids}, &resp)
	return resp, err
}

func (c *Client) CleanupImages(ctx context.Context, dryRun bool) (CleanupResponse, error) {
	var resp CleanupResponse
	query := url.Values{}
	if dryRun {
		query.Set("dry_run", "true")
	}
	_, err := c.do(ctx, http.MethodPost, "/images/cleanup", query, nil, &resp)
	return resp, err
}

// UploadFile sends file bytes as multipart form field "file".
func (c *Client) UploadFile(ctx context.Context, filename, name string, content io.Reader) (FileResponse, error) {
	var resp FileResponse
	fields := map[string]string{}
	if name != "" {
		fields["name"] = name
	}
	err := c.upload(ctx, "/files/upload", "file", filename, fields, content, &resp)
	return resp, err
}

func (c *Client) GetFile(ctx context.Context, id string) (FileResponse, error) {
	var resp FileResponse
	_, err := c.do(ctx, http.MethodGet, "/files/"+url.PathEscape(id), nil, nil, &resp)
	return resp, err
}

// DownloadFile streams file bytes to w and returns the served filename.
func (c *Client) DownloadFile(ctx context.Context, id string, w io.Writer) (string, error) {
	resp, err := c.stream(ctx, "/files/"+url.PathEscape(id)+"/download", w)
	if err != nil {
		return "", err
	}
	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
	if err != nil {
		return "", nil
	}
	return params["filename"], nil
}

func (c *Client) RenameFile(ctx context.Context, id, name string) (FileResponse, error) {
	var resp FileResponse
	_, err := c.do(ctx, http.MethodPut, "/files/"+url.PathEscape(id), nil, RenameFileRequest{Name: name}, &resp)
	return resp, err
}

func (c *Client) DeleteFile(ctx context.Context, id string) (DeleteResponse, error) {
	var resp DeleteResponse
	_, err := c.do(ctx, http.MethodDelete, "/files/"+url.PathEscape(id), nil, nil, &resp)
	return resp, err
}

// GCBlobs runs blob garbage collection. Applying requires confirm.
func (c *Client) GCBlobs(ctx context.Context, req BlobGCRequest, confirm bool) (BlobGCResponse, error) {
	var resp BlobGCResponse
	header := http.Header{}
	if confirm {
		header.Set("X-Confirm", "true")
	}
	_, err := c.doWithHeader(ctx, http.MethodPost, "/admin/blobs/gc", nil, header, req, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) (RawResponse, error) {
	return c.doWithHeader(ctx, method, path, query, nil, body, out)
}

func (c *Client) doWithHeader(ctx context.Context, method, path string, query url.Values, header http.Header, body any, out any) (RawResponse, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return RawResponse{}, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return RawResponse{}, err
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return c.send(req, out)
}

func (c *Client) upload(ctx context.Context, path, field, filename string, fields map[string]string, content io.Reader, out any) error {
	if strings.TrimSpace(filename) == "" {
		filename = field
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return err
		}
	}
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	_, err = c.send(req, out)
	return err
}

func (c *Client) send(req *http.Request, out any) (RawResponse, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return RawResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return RawResponse{}, decodeError(resp)
	}

	var env RawResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return RawResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if out == nil || len(env.Data) == 0 {
		return env, nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return env, fmt.Errorf("decode response data: %w", err)
	}
	return env, nil
}

func (c *Client) stream(ctx context.Context, path string, w io.Writer) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, decodeError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return nil, err
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	var env RawResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err == nil && (env.Message != "" || len(env.Errors) > 0) {
		return &APIError{
			Status:    resp.StatusCode,
			Code:      env.Code,
			ErrorCode: env.ErrorCode,
			Message:   env.Message,
			Fields:    env.Errors,
		}
	}
	return &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("api error: %s", resp.Status)}
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
