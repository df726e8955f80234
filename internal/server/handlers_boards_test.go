package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"

	"moodboard/internal/api"
)

func TestSaveBoardIncrementsVersion(t *testing.T) {
	srv := newTestServer(t)

	first := saveTestBoard(t, srv, "b1", map[string]any{"objects": []any{}})
	if first.Version != 1 {
		t.Fatalf("expected version 1 on create, got %d", first.Version)
	}
	for want := int64(2); want <= 4; want++ {
		saved := saveTestBoard(t, srv, "b1", map[string]any{"objects": []any{}})
		if saved.Version != want {
			t.Fatalf("expected version %d, got %d", want, saved.Version)
		}
		if saved.Timestamp.IsZero() {
			t.Fatal("expected save timestamp")
		}
	}
}

func TestConcurrentSavesGetDistinctVersions(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.routes()
	const saves = 20

	recorders := make([]*httptest.ResponseRecorder, saves)
	requests := make([]*http.Request, saves)
	for i := range requests {
		body := fmt.Sprintf(`{"boardId":"shared","boardData":{"objects":[{"id":"o%d","type":"text"}]}}`, i)
		requests[i] = httptest.NewRequest(http.MethodPost, "/moodboard/save", strings.NewReader(body))
		requests[i].Header.Set("Content-Type", "application/json")
		recorders[i] = httptest.NewRecorder()
	}

	var wg sync.WaitGroup
	for i := range requests {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handler.ServeHTTP(recorders[i], requests[i])
		}(i)
	}
	wg.Wait()

	versions := make([]int64, 0, saves)
	for _, w := range recorders {
		expectStatus(t, w, http.StatusOK)
		var saved api.SaveBoardResponse
		decodeEnvelope(t, w, &saved)
		versions = append(versions, saved.Version)
	}
	slices.Sort(versions)
	for i, v := range versions {
		if v != int64(i+1) {
			t.Fatalf("expected versions 1..%d without gaps or repeats, got %v", saves, versions)
		}
	}

	w := serveJSON(t, srv, http.MethodGet, "/moodboard/load/shared", nil)
	expectStatus(t, w, http.StatusOK)
	var board api.BoardResponse
	decodeEnvelope(t, w, &board)
	if board.Version != saves {
		t.Fatalf("expected final version %d, got %d", saves, board.Version)
	}
}

func TestSaveBoardValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name    string
		payload map[string]any
		field   string
	}{
		{"missing board id", map[string]any{"boardData": map[string]any{}}, "boardId"},
		{"numeric board id", map[string]any{"boardId": 7, "boardData": map[string]any{}}, "boardId"},
		{"slash in board id", map[string]any{"boardId": "a/b", "boardData": map[string]any{}}, "boardId"},
		{"trailing space in board id", map[string]any{"boardId": "b1 ", "boardData": map[string]any{}}, "boardId"},
		{"missing board data", map[string]any{"boardId": "b1"}, "boardData"},
		{"board data not an object", map[string]any{"boardId": "b1", "boardData": "nope"}, "boardData"},
		{"objects not an array", map[string]any{"boardId": "b1", "boardData": map[string]any{"objects": "x"}}, "boardData.objects"},
		{"object not an object", map[string]any{"boardId": "b1", "boardData": map[string]any{"objects": []any{1}}}, "boardData.objects.0"},
		{"non-string image id", map[string]any{"boardId": "b1", "boardData": map[string]any{"objects": []any{
			map[string]any{"id": "o1", "type": "image", "imageId": 42, "src": "data:image/png;base64,AAAA"},
		}}}, "boardData.objects.0.imageId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveJSON(t, srv, http.MethodPost, "/moodboard/save", tt.payload)
			expectStatus(t, w, http.StatusUnprocessableEntity)
			env := decodeEnvelope(t, w, nil)
			if env.Success {
				t.Fatal("expected success=false")
			}
			if env.Code != "validation_failed" {
				t.Fatalf("expected code validation_failed, got %q", env.Code)
			}
			if len(env.Errors[tt.field]) == 0 {
				t.Fatalf("expected error for %s, got %#v", tt.field, env.Errors)
			}
		})
	}

	w := serveJSON(t, srv, http.MethodGet, "/moodboard/list", nil)
	expectStatus(t, w, http.StatusOK)
	var boards []api.BoardSummary
	decodeEnvelope(t, w, &boards)
	if len(boards) != 0 {
		t.Fatalf("expected no boards after rejected saves, got %d", len(boards))
	}
}

func TestSaveBoardRejectsMalformedJSON(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/moodboard/save", strings.NewReader(`{"boardId":`))
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)
	expectStatus(t, w, http.StatusBadRequest)
	env := decodeEnvelope(t, w, nil)
	if env.ErrorCode != ErrCodeInvalidJSON {
		t.Fatalf("expected error_code %d, got %d", ErrCodeInvalidJSON, env.ErrorCode)
	}
}

func TestLoadBoardCreatesMissingBoard(t *testing.T) {
	srv := newTestServer(t)

	w := serveJSON(t, srv, http.MethodGet, "/moodboard/load/fresh", nil)
	expectStatus(t, w, http.StatusOK)

	var board api.BoardResponse
	decodeEnvelope(t, w, &board)
	if board.ID != "fresh" {
		t.Fatalf("expected id fresh, got %q", board.ID)
	}
	if board.Name != "New Board" {
		t.Fatalf("expected name New Board, got %q", board.Name)
	}
	if board.Version != 1 {
		t.Fatalf("expected version 1, got %d", board.Version)
	}
	if len(board.Objects) != 0 {
		t.Fatalf("expected no objects, got %d", len(board.Objects))
	}

	saved := saveTestBoard(t, srv, "fresh", map[string]any{"objects": []any{}})
	if saved.Version != 2 {
		t.Fatalf("expected save after load to bump to version 2, got %d", saved.Version)
	}
}

func TestBoardIDWithSurroundingWhitespaceIsRejected(t *testing.T) {
	srv := newTestServer(t)
	saveTestBoard(t, srv, "b1", map[string]any{"objects": []any{}})

	w := serveJSON(t, srv, http.MethodPost, "/moodboard/save", map[string]any{"boardId": "b1 ", "boardData": map[string]any{"objects": []any{}}})
	expectStatus(t, w, http.StatusUnprocessableEntity)
	env := decodeEnvelope(t, w, nil)
	if env.ErrorCode != ErrCodeInvalidBoardID {
		t.Fatalf("expected error_code %d, got %d", ErrCodeInvalidBoardID, env.ErrorCode)
	}

	for _, path := range []string{"/moodboard/load/b1%20", "/moodboard/show/b1%20", "/moodboard/load/%20b1"} {
		w := serveJSON(t, srv, http.MethodGet, path, nil)
		expectStatus(t, w, http.StatusUnprocessableEntity)
		env := decodeEnvelope(t, w, nil)
		if len(env.Errors["boardId"]) == 0 {
			t.Fatalf("%s: expected boardId error, got %#v", path, env.Errors)
		}
	}

	w = serveJSON(t, srv, http.MethodGet, "/moodboard/load/b1", nil)
	expectStatus(t, w, http.StatusOK)
	var board api.BoardResponse
	decodeEnvelope(t, w, &board)
	if board.ID != "b1" || board.Version != 1 {
		t.Fatalf("expected untouched board b1 at version 1, got %q at %d", board.ID, board.Version)
	}

	w = serveJSON(t, srv, http.MethodGet, "/moodboard/list", nil)
	expectStatus(t, w, http.StatusOK)
	var boards []api.BoardSummary
	decodeEnvelope(t, w, &boards)
	if len(boards) != 1 {
		t.Fatalf("expected exactly one board, got %d", len(boards))
	}
}

func TestSaveNormalizesAndLoadResolves(t *testing.T) {
	srv := newTestServer(t)
	img := uploadTestImage(t, srv, "one.png", pngBytes(t, 4, 3, 10))

	obj := imageObject("o1", img.ID)
	obj["properties"] = map[string]any{"src": "data:image/png;base64,AAAA", "opacity": 0.5}
	obj["src"] = "blob:stale"
	saveTestBoard(t, srv, "b1", map[string]any{
		"objects":  []any{obj, imageObject("o2", "img-00000000000000000000000000")},
		"settings": map[string]any{"gridSize": 10},
		"theme":    "dark",
	})

	stored, err := srv.store.FindBoard(t.Context(), "b1")
	if err != nil || stored == nil {
		t.Fatalf("find stored board: %v", err)
	}
	storedObj := stored.Document.Objects[0]
	if _, ok := storedObj.PropertySrc(); ok {
		t.Fatal("expected persisted properties.src to be stripped")
	}
	if storedObj.Image == nil || storedObj.Image.Src != nil {
		t.Fatal("expected persisted src to be stripped")
	}
	if _, ok := storedObj.Properties["opacity"]; !ok {
		t.Fatal("expected other properties to be kept")
	}

	w := serveJSON(t, srv, http.MethodGet, "/moodboard/load/b1", nil)
	expectStatus(t, w, http.StatusOK)
	var board api.BoardResponse
	decodeEnvelope(t, w, &board)

	if len(board.Objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(board.Objects))
	}
	src, ok := board.Objects[0].PropertySrc()
	if !ok || src != testPublicURL+"/images/"+img.ID+"/file" {
		t.Fatalf("expected resolved src, got %q", src)
	}
	if _, ok := board.Objects[1].PropertySrc(); ok {
		t.Fatal("expected unknown image reference to stay unresolved")
	}
	if board.Objects[1].ImageRef() != "img-00000000000000000000000000" {
		t.Fatal("expected unknown imageId to be preserved")
	}
	if string(board.Extra["theme"]) != `"dark"` {
		t.Fatalf("expected extra key theme to round-trip, got %s", board.Extra["theme"])
	}
	var settings map[string]int
	if err := json.Unmarshal(board.Settings, &settings); err != nil || settings["gridSize"] != 10 {
		t.Fatalf("expected saved settings, got %s", board.Settings)
	}
}

func TestSaveBoardUsesDocumentName(t *testing.T) {
	srv := newTestServer(t)
	saveTestBoard(t, srv, "named", map[string]any{"name": "Inspiration", "description": "colors", "objects": []any{}})

	w := serveJSON(t, srv, http.MethodGet, "/moodboard/show/named", nil)
	expectStatus(t, w, http.StatusOK)
	var shown api.ShowBoardResponse
	decodeEnvelope(t, w, &shown)
	if shown.Board.Name != "Inspiration" || shown.Board.Description != "colors" {
		t.Fatalf("expected name and description from document, got %q / %q", shown.Board.Name, shown.Board.Description)
	}
}

func TestShowBoardNotFound(t *testing.T) {
	srv := newTestServer(t)

	w := serveJSON(t, srv, http.MethodGet, "/moodboard/show/missing", nil)
	expectStatus(t, w, http.StatusNotFound)
	env := decodeEnvelope(t, w, nil)
	if env.ErrorCode != ErrCodeBoardNotFound {
		t.Fatalf("expected error_code %d, got %d", ErrCodeBoardNotFound, env.ErrorCode)
	}
}

func TestListAndShowBoardStats(t *testing.T) {
	srv := newTestServer(t)
	saveTestBoard(t, srv, "stats", map[string]any{"objects": []any{
		map[string]any{"id": "t1", "type": "text", "content": "hi"},
		map[string]any{"id": "t2", "type": "text", "content": "there"},
		map[string]any{"id": "s1", "type": "shape", "shapeType": "rect"},
		map[string]any{"id": "x1"},
	}})

	w := serveJSON(t, srv, http.MethodGet, "/moodboard/list", nil)
	expectStatus(t, w, http.StatusOK)
	var boards []api.BoardSummary
	decodeEnvelope(t, w, &boards)
	if len(boards) != 1 {
		t.Fatalf("expected 1 board, got %d", len(boards))
	}
	stats := boards[0].ObjectStats
	if stats.Total != 4 || stats.ByType["text"] != 2 || stats.ByType["shape"] != 1 || stats.ByType["unknown"] != 1 {
		t.Fatalf("unexpected object stats: %+v", stats)
	}

	w = serveJSON(t, srv, http.MethodGet, "/moodboard/show/stats", nil)
	expectStatus(t, w, http.StatusOK)
	var shown api.ShowBoardResponse
	decodeEnvelope(t, w, &shown)
	if shown.Stats.Total != 4 {
		t.Fatalf("expected show stats total 4, got %d", shown.Stats.Total)
	}
}

func TestDuplicateBoard(t *testing.T) {
	srv := newTestServer(t)
	saveTestBoard(t, srv, "orig", map[string]any{"name": "Foo", "objects": []any{
		map[string]any{"id": "t1", "type": "text", "content": "hi"},
	}})
	saveTestBoard(t, srv, "orig", map[string]any{"name": "Foo", "objects": []any{
		map[string]any{"id": "t1", "type": "text", "content": "hi"},
	}})

	w := serveJSON(t, srv, http.MethodPost, "/moodboard/duplicate/orig", nil)
	expectStatus(t, w, http.StatusOK)
	var copied api.BoardResponse
	decodeEnvelope(t, w, &copied)

	if copied.ID == "orig" || !strings.HasPrefix(copied.ID, "board-") {
		t.Fatalf("expected generated board id, got %q", copied.ID)
	}
	if copied.Name != "Foo (copy)" {
		t.Fatalf("expected name %q, got %q", "Foo (copy)", copied.Name)
	}
	if copied.Version != 1 {
		t.Fatalf("expected copy at version 1, got %d", copied.Version)
	}
	if len(copied.Objects) != 1 {
		t.Fatalf("expected copied objects, got %d", len(copied.Objects))
	}

	w = serveJSON(t, srv, http.MethodGet, "/moodboard/load/orig", nil)
	var original api.BoardResponse
	decodeEnvelope(t, w, &original)
	if original.Version != 2 || original.Name != "Foo" {
		t.Fatalf("expected original untouched, got version %d name %q", original.Version, original.Name)
	}

	w = serveJSON(t, srv, http.MethodPost, "/moodboard/duplicate/nope", nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestDeleteBoard(t *testing.T) {
	srv := newTestServer(t)
	saveTestBoard(t, srv, "gone", map[string]any{"objects": []any{}})

	w := serveJSON(t, srv, http.MethodDelete, "/moodboard/delete/gone", nil)
	expectStatus(t, w, http.StatusOK)

	w = serveJSON(t, srv, http.MethodGet, "/moodboard/show/gone", nil)
	expectStatus(t, w, http.StatusNotFound)

	w = serveJSON(t, srv, http.MethodDelete, "/moodboard/delete/gone", nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestDeleteBoardCleanupImages(t *testing.T) {
	srv := newTestServer(t)
	shared := uploadTestImage(t, srv, "shared.png", pngBytes(t, 2, 2, 1))
	own := uploadTestImage(t, srv, "own.png", pngBytes(t, 2, 2, 2))

	saveTestBoard(t, srv, "keep", map[string]any{"objects": []any{imageObject("o1", shared.ID)}})
	saveTestBoard(t, srv, "drop", map[string]any{"objects": []any{
		imageObject("o1", shared.ID),
		imageObject("o2", own.ID),
	}})

	w := serveJSON(t, srv, http.MethodDelete, "/moodboard/delete/drop?cleanup_images=true", nil)
	expectStatus(t, w, http.StatusOK)
	var result map[string]int
	decodeEnvelope(t, w, &result)
	if result["deleted_images"] != 1 {
		t.Fatalf("expected 1 deleted image, got %v", result)
	}

	w = serveJSON(t, srv, http.MethodGet, "/images/"+own.ID, nil)
	expectStatus(t, w, http.StatusNotFound)
	w = serveJSON(t, srv, http.MethodGet, "/images/"+shared.ID, nil)
	expectStatus(t, w, http.StatusOK)
}

func TestBoardImageStats(t *testing.T) {
	srv := newTestServer(t)
	first := pngBytes(t, 3, 3, 20)
	second := pngBytes(t, 5, 5, 21)
	a := uploadTestImage(t, srv, "a.png", first)
	b := uploadTestImage(t, srv, "b.png", second)

	saveTestBoard(t, srv, "b1", map[string]any{"objects": []any{
		imageObject("o1", a.ID),
		imageObject("o2", b.ID),
		imageObject("o3", a.ID),
		map[string]any{"id": "t1", "type": "text"},
	}})

	w := serveJSON(t, srv, http.MethodGet, "/moodboard/b1/images/stats", nil)
	expectStatus(t, w, http.StatusOK)
	var stats api.BoardImageStats
	decodeEnvelope(t, w, &stats)

	if stats.TotalImages != 2 {
		t.Fatalf("expected 2 distinct images, got %d", stats.TotalImages)
	}
	wantSize := int64(len(first) + len(second))
	if stats.TotalSize != wantSize {
		t.Fatalf("expected total size %d, got %d", wantSize, stats.TotalSize)
	}
	if stats.AverageSize != float64(wantSize)/2 {
		t.Fatalf("expected average size %v, got %v", float64(wantSize)/2, stats.AverageSize)
	}
	if stats.Formats["image/png"] != 2 {
		t.Fatalf("expected 2 png images, got %v", stats.Formats)
	}
}
