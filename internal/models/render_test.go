package models_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/MegaGrindStone/sqlchat-web-ui/internal/models"
)

func TestRenderMessageText(t *testing.T) {
	msg := models.Message{
		ID:        "1",
		Sender:    models.SenderBot,
		Text:      "first\nsecond\n\nfourth",
		Timestamp: time.Date(2024, 1, 2, 9, 5, 0, 0, time.UTC),
		Variant:   models.VariantText,
	}

	view, err := models.RenderMessage(msg)
	if err != nil {
		t.Fatalf("RenderMessage() error = %v", err)
	}

	want := []string{"first", "second", "", "fourth"}
	if len(view.Lines) != len(want) {
		t.Fatalf("RenderMessage() lines = %q, want %q", view.Lines, want)
	}
	for i := range want {
		if view.Lines[i] != want[i] {
			t.Errorf("RenderMessage() line %d = %q, want %q", i, view.Lines[i], want[i])
		}
	}
	if view.Time != "09:05" {
		t.Errorf("RenderMessage() time = %q, want %q", view.Time, "09:05")
	}
	if view.Table != nil || view.NoData || view.ErrorText != "" {
		t.Errorf("RenderMessage() filled non-text fields: %+v", view)
	}
}

func TestRenderMessageResponse(t *testing.T) {
	tests := []struct {
		name        string
		payload     *models.Payload
		wantModel   string
		wantSQL     bool
		wantHeaders int
		wantRows    int
		wantNoData  bool
	}{
		{
			name: "Rows with disagreeing row count",
			payload: &models.Payload{
				SQL:         "SELECT id, name FROM students",
				Explanation: "Lists students.",
				Table:       [][]any{{json.Number("1"), "Alice"}, {json.Number("2"), "Bob"}},
				ModelInfo:   "llama3.2:3b",
				RowCount:    5,
			},
			wantModel:   "llama3.2:3b",
			wantSQL:     true,
			wantHeaders: 2,
			wantRows:    2,
		},
		{
			name: "Empty result",
			payload: &models.Payload{
				SQL:   "SELECT * FROM students WHERE marks > 100",
				Table: [][]any{},
			},
			wantModel:  models.DefaultModelLabel,
			wantSQL:    true,
			wantNoData: true,
		},
		{
			name:      "Explanation only",
			payload:   &models.Payload{Explanation: "Nothing to run."},
			wantModel: models.DefaultModelLabel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view, err := models.RenderMessage(models.Message{
				ID:      "r",
				Sender:  models.SenderBot,
				Variant: models.VariantResponse,
				Payload: tt.payload,
			})
			if err != nil {
				t.Fatalf("RenderMessage() error = %v", err)
			}

			if view.ModelInfo != tt.wantModel {
				t.Errorf("RenderMessage() model = %q, want %q", view.ModelInfo, tt.wantModel)
			}
			if (view.SQLHTML != "") != tt.wantSQL {
				t.Errorf("RenderMessage() SQLHTML = %q, want present = %v", view.SQLHTML, tt.wantSQL)
			}
			if view.NoData != tt.wantNoData {
				t.Errorf("RenderMessage() NoData = %v, want %v", view.NoData, tt.wantNoData)
			}
			if tt.wantRows == 0 {
				if view.Table != nil {
					t.Errorf("RenderMessage() table = %+v, want none", view.Table)
				}
				return
			}
			if view.Table == nil {
				t.Fatal("RenderMessage() table is nil")
			}
			if len(view.Table.Headers) != tt.wantHeaders {
				t.Errorf("RenderMessage() headers = %q, want %d", view.Table.Headers, tt.wantHeaders)
			}
			if view.Table.Headers[0] != "Column 1" {
				t.Errorf("RenderMessage() first header = %q, want %q", view.Table.Headers[0], "Column 1")
			}
			if len(view.Table.Rows) != tt.wantRows || view.Table.RowCount != tt.wantRows {
				t.Errorf("RenderMessage() rows = %d, row count = %d, want %d",
					len(view.Table.Rows), view.Table.RowCount, tt.wantRows)
			}
		})
	}
}

func TestRenderMessageError(t *testing.T) {
	view, err := models.RenderMessage(models.Message{
		ID:      "e",
		Sender:  models.SenderBot,
		Text:    "Request timed out.",
		Variant: models.VariantError,
		Payload: &models.Payload{Error: "context deadline exceeded"},
	})
	if err != nil {
		t.Fatalf("RenderMessage() error = %v", err)
	}
	if view.ErrorText != "Request timed out." {
		t.Errorf("RenderMessage() error text = %q, want %q", view.ErrorText, "Request timed out.")
	}
	if view.Lines != nil {
		t.Errorf("RenderMessage() lines = %q, want none", view.Lines)
	}
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		name string
		cell any
		want string
	}{
		{name: "Embedded quotes", cell: `O"Brien"`, want: "OBrien"},
		{name: "Plain string", cell: "Alice", want: "Alice"},
		{name: "JSON number", cell: json.Number("85.5"), want: "85.5"},
		{name: "Float", cell: float64(3), want: "3"},
		{name: "Nil", cell: nil, want: ""},
		{name: "Bool", cell: true, want: "true"},
		{name: "Nested", cell: map[string]any{"a": json.Number("1")}, want: `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := models.FormatCell(tt.cell); got != tt.want {
				t.Errorf("FormatCell(%v) = %q, want %q", tt.cell, got, tt.want)
			}
		})
	}
}

func TestHighlightSQL(t *testing.T) {
	got, err := models.HighlightSQL("SELECT name FROM students WHERE name = '<b>'")
	if err != nil {
		t.Fatalf("HighlightSQL() error = %v", err)
	}

	html := string(got)
	if !strings.Contains(html, "<pre") {
		t.Errorf("HighlightSQL() = %q, want a <pre> block", html)
	}
	if strings.Contains(html, "<b>") {
		t.Errorf("HighlightSQL() = %q, want code escaped", html)
	}
	if !strings.Contains(html, "students") {
		t.Errorf("HighlightSQL() = %q, want to contain the query", html)
	}
}

func TestHealthHealthy(t *testing.T) {
	tests := []struct {
		name   string
		health models.Health
		want   bool
	}{
		{name: "All up", health: models.Health{API: "running", Ollama: "connected"}, want: true},
		{name: "Model down", health: models.Health{API: "running", Ollama: "not_connected"}},
		{name: "Empty", health: models.Health{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.health.Healthy(); got != tt.want {
				t.Errorf("Healthy() = %v, want %v", got, tt.want)
			}
		})
	}
}
