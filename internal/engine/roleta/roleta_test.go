package roleta

import (
	"math/rand"
	"testing"

	"imovelcerto/internal/domain"
)

func captador(id, regiao string, ativo bool) domain.Usuario {
	return domain.Usuario{ID: id, Tipo: domain.PapelCaptador, Regiao: regiao, Ativo: ativo}
}

func TestElegiveis(t *testing.T) {
	pool := []domain.Usuario{
		captador("norte", "Norte", true),
		captador("geral", "Geral", true),
		captador("sul", "Sul", true),
		captador("inativo", "Norte", false),
	}

	got := Elegiveis(pool, "Norte")
	if len(got) != 2 {
		t.Fatalf("Norte: %d eligible, want 2", len(got))
	}
	if got[0].ID != "norte" || got[1].ID != "geral" {
		t.Fatalf("Norte pool = %s, %s", got[0].ID, got[1].ID)
	}

	// A wildcard demanda draws only from wildcard captadores; a Norte
	// captador never crosses into it.
	got = Elegiveis(pool, domain.RegiaoGeral)
	if len(got) != 1 || got[0].ID != "geral" {
		t.Fatalf("Geral: %d eligible, want only the wildcard captador", len(got))
	}

	if got := Elegiveis(nil, "Norte"); got != nil {
		t.Fatalf("empty pool should yield nil, got %v", got)
	}
}

func TestSortearVazio(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	if _, err := Sortear(rnd, nil); err != ErrSemCandidatos {
		t.Fatalf("err = %v, want ErrSemCandidatos", err)
	}
}

func TestSortearUniforme(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	candidatos := []domain.Usuario{
		captador("a", "Norte", true),
		captador("b", "Norte", true),
		captador("c", "Geral", true),
	}
	const draws = 3000
	counts := map[string]int{}
	for i := 0; i < draws; i++ {
		u, err := Sortear(rnd, candidatos)
		if err != nil {
			t.Fatalf("sortear: %v", err)
		}
		counts[u.ID]++
	}
	// Each candidate should land near draws/3; a wide tolerance keeps the
	// test stable across seeds.
	for id, n := range counts {
		if n < 800 || n > 1200 {
			t.Fatalf("candidate %s drawn %d times out of %d", id, n, draws)
		}
	}
	if len(counts) != 3 {
		t.Fatalf("only %d distinct candidates drawn", len(counts))
	}
}
