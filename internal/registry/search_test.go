package registry

import (
	"math"
	"strconv"
	"testing"
)

func embeddedDef(id string, vec []float32) Definition {
	d := def(id, "read")
	d.Embedding = vec
	return d
}

func buildSearchRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New()
	for _, d := range []Definition{
		embeddedDef("x_axis", []float32{1, 0, 0}),
		embeddedDef("y_axis", []float32{0, 1, 0}),
		embeddedDef("diagonal", []float32{1, 1, 0}),
		def("no_embedding", "read"),
	} {
		if err := r.Register(d); err != nil {
			t.Fatalf("register %s: %v", d.ID, err)
		}
	}
	r.Freeze()
	return r
}

func TestSearchRanking(t *testing.T) {
	r := buildSearchRegistry(t)

	matches, err := r.Search([]float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	// min(k, N) with N=3 embedded tools.
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}
	if matches[0].Tool.Def.ID != "x_axis" {
		t.Fatalf("best match = %s, want x_axis", matches[0].Tool.Def.ID)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Fatalf("scores not non-increasing: %v then %v", matches[i-1].Score, matches[i].Score)
		}
	}
	for _, m := range matches {
		if m.Tool.Def.ID == "no_embedding" {
			t.Fatalf("tool without embedding appeared in results")
		}
	}
}

func TestSearchTopK(t *testing.T) {
	r := buildSearchRegistry(t)
	matches, err := r.Search([]float32{1, 1, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Tool.Def.ID != "diagonal" {
		t.Fatalf("top match = %s, want diagonal", matches[0].Tool.Def.ID)
	}
}

func TestSearchTieBrokenByRegistrationOrder(t *testing.T) {
	r := New()
	// Two tools equidistant from the query; first registered wins the tie.
	for _, d := range []Definition{
		embeddedDef("first", []float32{1, 0}),
		embeddedDef("second", []float32{0, 1}),
	} {
		if err := r.Register(d); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	r.Freeze()

	matches, err := r.Search([]float32{1, 1}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if matches[0].Tool.Def.ID != "first" || matches[1].Tool.Def.ID != "second" {
		t.Fatalf("tie order wrong: %s, %s", matches[0].Tool.Def.ID, matches[1].Tool.Def.ID)
	}
}

func TestSearchDimensionMismatch(t *testing.T) {
	r := buildSearchRegistry(t)
	if _, err := r.Search([]float32{1, 0}, 3); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}

func TestSearchEmptyCases(t *testing.T) {
	r := buildSearchRegistry(t)
	if matches, err := r.Search([]float32{1, 0, 0}, 0); err != nil || matches != nil {
		t.Fatalf("k=0 should return nothing, got %v, %v", matches, err)
	}

	empty := New()
	empty.Freeze()
	if matches, err := empty.Search([]float32{1}, 5); err != nil || matches != nil {
		t.Fatalf("empty registry should return nothing, got %v, %v", matches, err)
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosine(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func BenchmarkSearch(b *testing.B) {
	r := New()
	dim := 64
	for i := 0; i < 500; i++ {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = float32((i*31 + j*17) % 97)
		}
		d := embeddedDef("tool_"+strconv.Itoa(i), vec)
		if err := r.Register(d); err != nil {
			b.Fatal(err)
		}
	}
	r.Freeze()

	query := make([]float32, dim)
	for j := range query {
		query[j] = float32(j)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := r.Search(query, 10); err != nil {
			b.Fatal(err)
		}
	}
}
