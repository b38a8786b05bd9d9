package domain

import "testing"

func TestPapelHierarquia(t *testing.T) {
	if !PapelDiretor.TemPermissao(PapelAdmin) {
		t.Fatal("diretor should outrank admin")
	}
	if !PapelAdmin.TemPermissao(PapelAdmin) {
		t.Fatal("a role satisfies itself")
	}
	if PapelCaptador.TemPermissao(PapelGerenteRegional) {
		t.Fatal("captador should not outrank gerente_regional")
	}
	if Papel("corretor").Valido() {
		t.Fatal("unknown role must be invalid")
	}
	if Papel("corretor").TemPermissao(PapelCaptador) {
		t.Fatal("unknown role has no privilege")
	}
}

func TestPodeTransicionar(t *testing.T) {
	cases := []struct {
		de, para StatusMissao
		ok       bool
	}{
		{MissaoEmAndamento, MissaoImovelEncontrado, true},
		{MissaoEmAndamento, MissaoApresentadoCliente, true}, // forward skip
		{MissaoEmAndamento, MissaoLocacaoFechada, true},
		{MissaoImovelEncontrado, MissaoEmAndamento, false}, // backwards
		{MissaoApresentadoCliente, MissaoImovelEncontrado, false},
		{MissaoEmAndamento, MissaoEmAndamento, false},
		{MissaoApresentadoCliente, MissaoCancelada, true},
		{MissaoImovelEncontrado, MissaoTempoEsgotado, true},
		{MissaoLocacaoFechada, MissaoCancelada, false},
		{MissaoCancelada, MissaoEmAndamento, false},
		{MissaoTempoEsgotado, MissaoLocacaoFechada, false},
	}
	for _, c := range cases {
		if got := c.de.PodeTransicionar(c.para); got != c.ok {
			t.Errorf("%s -> %s = %v, want %v", c.de, c.para, got, c.ok)
		}
	}
}

func TestResultadoPara(t *testing.T) {
	if ResultadoPara(MissaoLocacaoFechada) != ResultadoSucesso {
		t.Fatal("locacao_fechada should map to sucesso")
	}
	if ResultadoPara(MissaoCancelada) != ResultadoFracasso {
		t.Fatal("cancelada should map to fracasso")
	}
	if ResultadoPara(MissaoTempoEsgotado) != ResultadoTempoEsgotado {
		t.Fatal("tempo_esgotado should map to tempo_esgotado")
	}
}

func TestTerminal(t *testing.T) {
	terminais := []StatusMissao{MissaoLocacaoFechada, MissaoCancelada, MissaoTempoEsgotado}
	for _, s := range terminais {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []StatusMissao{MissaoEmAndamento, MissaoImovelEncontrado, MissaoApresentadoCliente} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
