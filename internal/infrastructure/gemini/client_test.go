package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricelens/backend/internal/domain"
)

func answer(text string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"candidates": []interface{}{
			map[string]interface{}{
				"content": map[string]interface{}{
					"parts": []interface{}{map[string]string{"text": text}},
				},
			},
		},
	})
	return string(b)
}

var testImages = []domain.VisionImage{
	{SourceURL: "https://shop.example/a.png", Base64: "QUFB"},
	{SourceURL: "https://shop.example/b.jpg", Base64: "QkJC", MimeType: "image/jpeg"},
}

func TestClassifyBatch(t *testing.T) {
	tests := []struct {
		name      string
		modelText string
		want      []*domain.Classification
	}{
		{
			name:      "fenced answer",
			modelText: "```json\n[{\"isProduct\": true, \"name\": \"Sony WH-1000XM5\", \"brand\": \"Sony\"}, {\"isProduct\": false, \"name\": null, \"brand\": null}]\n```",
			want:      []*domain.Classification{{IsProduct: true, Name: "Sony WH-1000XM5", Brand: "Sony"}, nil},
		},
		{
			name:      "brackets inside names",
			modelText: `Here you go: [{"isProduct": true, "name": "Cable [2m]", "brand": null}, {"isProduct": true, "name": "Mug", "brand": "Acme"}]`,
			want:      []*domain.Classification{{IsProduct: true, Name: "Cable [2m]"}, {IsProduct: true, Name: "Mug", Brand: "Acme"}},
		},
		{
			name:      "length mismatch",
			modelText: `[{"isProduct": true, "name": "Only one", "brand": null}]`,
			want:      []*domain.Classification{nil, nil},
		},
		{
			name:      "no array",
			modelText: "I cannot help with that.",
			want:      []*domain.Classification{nil, nil},
		},
		{
			name:      "product without name",
			modelText: `[{"isProduct": true, "name": "  ", "brand": "X"}, {"isProduct": false}]`,
			want:      []*domain.Classification{nil, nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/v1beta/models/gemini-test:generateContent", r.URL.Path)
				assert.Equal(t, "secret", r.URL.Query().Get("key"))

				var req generateRequest
				body, _ := io.ReadAll(r.Body)
				if assert.NoError(t, json.Unmarshal(body, &req)) &&
					assert.Len(t, req.Contents, 1) &&
					assert.Len(t, req.Contents[0].Parts, 3) {
					assert.Equal(t, "image/png", req.Contents[0].Parts[1].InlineData.MimeType)
					assert.Equal(t, "QkJC", req.Contents[0].Parts[2].InlineData.Data)
				}

				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(answer(tt.modelText)))
			}))
			defer server.Close()

			client := NewClient(server.URL+"/v1beta", "gemini-test", nil)
			got, err := client.ClassifyBatch(context.Background(), "secret", testImages)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyBatch_MissingKey(t *testing.T) {
	client := NewClient("http://unused", "gemini-test", nil)

	_, err := client.ClassifyBatch(context.Background(), "", testImages)

	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestClassifyBatch_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"API key not valid"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "gemini-test", nil)
	_, err := client.ClassifyBatch(context.Background(), "bad", testImages)

	assert.ErrorIs(t, err, domain.ErrBadStatus)
	assert.Contains(t, err.Error(), "API key not valid")
}

func TestVerify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "good" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(answer("API key is valid")))
	}))
	defer server.Close()

	client := NewClient(server.URL, "gemini-test", nil)

	assert.NoError(t, client.Verify(context.Background(), "good"))
	assert.ErrorIs(t, client.Verify(context.Background(), "bad"), domain.ErrBadStatus)
	assert.ErrorIs(t, client.Verify(context.Background(), ""), domain.ErrConfiguration)
}

func TestExtractJSONArray(t *testing.T) {
	got, ok := extractJSONArray(`x [1, [2, 3], "]"] y ]`)
	assert.True(t, ok)
	assert.Equal(t, `[1, [2, 3], "]"]`, got)

	_, ok = extractJSONArray(`[1, 2`)
	assert.False(t, ok)
}
