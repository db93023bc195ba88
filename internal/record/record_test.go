package record

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNormalizer() *Normalizer {
	n := NewNormalizer(slog.New(slog.NewTextHandler(io.Discard, nil)))
	n.newID = func() string { return "synthetic-1" }
	return n
}

func TestNormalize_IDResolutionOrder(t *testing.T) {
	n := testNormalizer()

	tests := []struct {
		name        string
		rec         Record
		idField     string
		requestedID string
		expected    any
	}{
		{
			name:     "объявленное поле ресурса",
			rec:      Record{"userId": json.Number("7"), "id": json.Number("99")},
			idField:  "userId",
			expected: json.Number("7"),
		},
		{
			name:     "объявленное поле пустое — берём id",
			rec:      Record{"userId": nil, "id": json.Number("99")},
			idField:  "userId",
			expected: json.Number("99"),
		},
		{
			name:        "id из запроса",
			rec:         Record{"title": "공지"},
			idField:     "noticeId",
			requestedID: "15",
			expected:    json.Number("15"),
		},
		{
			name:        "нечисловой id из запроса остаётся строкой",
			rec:         Record{},
			idField:     "noticeId",
			requestedID: "abc",
			expected:    "abc",
		},
		{
			name:     "поле с id в имени и положительным значением",
			rec:      Record{"authorId": json.Number("0"), "kindergartenId": json.Number("3"), "title": "x"},
			idField:  "reviewId",
			expected: json.Number("3"),
		},
		{
			name:     "синтетический id",
			rec:      Record{"title": "x", "userId": json.Number("-1")},
			idField:  "postId",
			expected: "synthetic-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.rec, "test", tt.idField, tt.requestedID)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got["id"])
		})
	}
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	n := testNormalizer()
	in := Record{"postId": json.Number("5")}

	out, err := n.Normalize(in, "community", "postId", "")
	require.NoError(t, err)
	assert.NotContains(t, in, "id")
	assert.Equal(t, json.Number("5"), out["id"])
}

func TestNormalize_Idempotent(t *testing.T) {
	n := testNormalizer()

	records := []Record{
		{"userId": json.Number("7"), "nickname": "X"},
		{"id": "a", "postId": json.Number("8")},
		{"reporterId": json.Number("2"), "targetId": json.Number("9")},
		{"title": "no id at all"},
		{},
	}
	for _, r := range records {
		once, err := n.Normalize(r, "x", "postId", "")
		require.NoError(t, err)
		twice, err := n.Normalize(once, "x", "postId", "")
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	}
}

func TestNormalize_DomainError(t *testing.T) {
	n := testNormalizer()

	_, err := n.Normalize(Record{"code": "U001", "message": "사용자를 찾을 수 없습니다"}, "users", "userId", "1")

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "U001", domainErr.Code)
	assert.Equal(t, "사용자를 찾을 수 없습니다", domainErr.Message)
}

func TestNormalize_OnlyMessageIsNotAnError(t *testing.T) {
	n := testNormalizer()
	_, err := n.Normalize(Record{"message": "ok", "inquiryId": json.Number("1")}, "inquiries", "inquiryId", "")
	assert.NoError(t, err)
}

func TestCanonical_KeepsCodeAndMessageFields(t *testing.T) {
	n := testNormalizer()

	out := n.Canonical(Record{"code": "N-1", "message": "본문", "noticeId": json.Number("5")}, "notices", "noticeId", "")
	assert.Equal(t, json.Number("5"), out["id"])
	assert.Equal(t, "N-1", out["code"])
}

func TestNormalizeAll(t *testing.T) {
	n := testNormalizer()
	items := []Record{{"reportId": json.Number("1")}, {"reportId": json.Number("2")}}

	out, err := n.NormalizeAll(items, "reports", "reportId")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "1", out[0].ID())
	assert.Equal(t, "2", out[1].ID())
}

func TestUnwrapList(t *testing.T) {
	tests := []struct {
		name      string
		body      any
		wantLen   int
		wantTotal int
	}{
		{
			name: "страница Spring",
			body: map[string]any{
				"content":       []any{map[string]any{"a": 1.0}, map[string]any{"a": 2.0}},
				"totalElements": json.Number("40"),
			},
			wantLen:   2,
			wantTotal: 40,
		},
		{
			name: "страница внутри data",
			body: map[string]any{
				"success": true,
				"data": map[string]any{
					"content":       []any{map[string]any{"a": 1.0}},
					"totalElements": json.Number("1"),
				},
			},
			wantLen:   1,
			wantTotal: 1,
		},
		{
			name:      "массив внутри data",
			body:      map[string]any{"data": []any{map[string]any{}, map[string]any{}, map[string]any{}}},
			wantLen:   3,
			wantTotal: 3,
		},
		{
			name:      "голый массив",
			body:      []any{map[string]any{"a": 1.0}},
			wantLen:   1,
			wantTotal: 1,
		},
		{
			name:      "пустой объект",
			body:      map[string]any{},
			wantLen:   0,
			wantTotal: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, total := UnwrapList(tt.body)
			assert.Len(t, items, tt.wantLen)
			assert.Equal(t, tt.wantTotal, total)
		})
	}
}

func TestUnwrapOne(t *testing.T) {
	wrapped := map[string]any{"success": true, "data": map[string]any{"postId": json.Number("3")}, "message": "ok"}
	assert.Equal(t, Record{"postId": json.Number("3")}, UnwrapOne(wrapped))

	bare := map[string]any{"postId": json.Number("3")}
	assert.Equal(t, Record(bare), UnwrapOne(bare))

	assert.Equal(t, Record{}, UnwrapOne("text"))
}

func TestMerge_OverrideWins(t *testing.T) {
	got := Merge(map[string]any{"title": "a", "body": "b"}, map[string]any{"title": "c", "postId": json.Number("1")})
	assert.Equal(t, Record{"title": "c", "body": "b", "postId": json.Number("1")}, got)
}

func TestIDValue(t *testing.T) {
	assert.Equal(t, json.Number("42"), IDValue("42"))
	assert.Equal(t, "uuid-x", IDValue("uuid-x"))
	assert.Equal(t, "42", IDString(json.Number("42")))
	assert.Equal(t, "42", IDString(42.0))
}
