// Package roleta implements the randomized captador draw. Every eligible
// captador has the same probability of being picked; history does not bias
// the draw.
package roleta

import (
	"errors"
	"math/rand"

	"imovelcerto/internal/domain"
)

var ErrSemCandidatos = errors.New("nenhum captador elegivel para a demanda")

// Elegiveis narrows the candidate pool to captadores that match the demanda
// region. Only captadores based in the wildcard region cross region
// boundaries; a demanda in the wildcard region draws from them alone.
func Elegiveis(captadores []domain.Usuario, regiaoDemanda string) []domain.Usuario {
	var out []domain.Usuario
	for _, c := range captadores {
		if !c.Ativo || c.Tipo != domain.PapelCaptador {
			continue
		}
		if c.Regiao == regiaoDemanda || c.Regiao == domain.RegiaoGeral {
			out = append(out, c)
		}
	}
	return out
}

// Sortear draws one captador uniformly from candidatos. The rand source is
// injected so tests can seed it.
func Sortear(rnd *rand.Rand, candidatos []domain.Usuario) (domain.Usuario, error) {
	if len(candidatos) == 0 {
		return domain.Usuario{}, ErrSemCandidatos
	}
	return candidatos[rnd.Intn(len(candidatos))], nil
}
