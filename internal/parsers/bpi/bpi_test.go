package bpi

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/domain"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/parser"
)

var header = []interface{}{"Data Mov.", "Data Valor", "Descrição do Movimento", "Montante", "Débito", "Crédito", "Valor em EUR"}

var rc = parser.RowContext{
	UserID:       "user-1",
	AccountID:    "acc-1",
	StatementID:  "stmt-1",
	SourceID:     "user-1/bpi.xlsx",
	HomeCurrency: "EUR",
}

// workbook writes an export with the header on row 16 and data from row 17.
func workbook(t *testing.T, header []interface{}, rows ...[]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetCellValue(sheet, "A1", "Consulta de Movimentos"))
	require.NoError(t, f.SetCellValue(sheet, "A3", "Conta"))
	require.NoError(t, f.SetCellValue(sheet, "B3", "0-1234567.000.001"))
	if header != nil {
		require.NoError(t, f.SetSheetRow(sheet, "A16", &header))
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, 17+i)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func normalizeAll(t *testing.T, data []byte, rc parser.RowContext) []parser.Outcome {
	t.Helper()
	p := NewParser()
	rows, err := p.Rows(context.Background(), data)
	require.NoError(t, err)

	outcomes := make([]parser.Outcome, len(rows))
	for i, row := range rows {
		outcomes[i] = parser.Safe(p, row, rc)
	}
	return outcomes
}

func TestNormalize_Montante(t *testing.T) {
	data := workbook(t, header,
		[]interface{}{"01-03-2024", "01-03-2024", "  COMPRA CONTINENTE ", "-12,50", "", "", ""},
		[]interface{}{"02-03-2024", "02-03-2024", "TRF RECEBIDA", "1.250,00 USD", "", "", ""},
	)

	outcomes := normalizeAll(t, data, rc)
	require.Len(t, outcomes, 2)

	first := outcomes[0]
	require.Equal(t, parser.Accepted, first.Kind, first.Reason)
	assert.Equal(t, "2024-03-01", first.Candidate.DateString())
	assert.Equal(t, "COMPRA CONTINENTE", first.Candidate.Description)
	assert.True(t, first.Candidate.Amount.Equal(decimal.RequireFromString("-12.50")))
	assert.Equal(t, "EUR", first.Candidate.Currency)

	second := outcomes[1]
	require.Equal(t, parser.Accepted, second.Kind, second.Reason)
	assert.True(t, second.Candidate.Amount.Equal(decimal.RequireFromString("1250")))
	assert.Equal(t, "USD", second.Candidate.Currency)
}

func TestNormalize_PointDecimalText(t *testing.T) {
	data := workbook(t, header,
		[]interface{}{"01-03-2024", "", "TEXTO COM PONTO", "10.50", "", "", ""},
		[]interface{}{"02-03-2024", "", "DEBITO COM PONTO", "", "3.5", "", ""},
		[]interface{}{"03-03-2024", "", "MILHARES", "-2.500", "", "", ""},
		[]interface{}{"04-03-2024", "", "GRUPOS ERRADOS", "1.2.3,40", "", "", ""},
	)

	outcomes := normalizeAll(t, data, rc)
	require.Len(t, outcomes, 4)
	for _, o := range outcomes[:3] {
		require.Equal(t, parser.Accepted, o.Kind, o.Reason)
	}
	assert.True(t, outcomes[0].Candidate.Amount.Equal(decimal.RequireFromString("10.5")))
	assert.True(t, outcomes[1].Candidate.Amount.Equal(decimal.RequireFromString("-3.5")))
	assert.True(t, outcomes[2].Candidate.Amount.Equal(decimal.RequireFromString("-2500")))
	assert.Equal(t, parser.RowError, outcomes[3].Kind)
	assert.Contains(t, outcomes[3].Reason, "line 20")
}

func TestNormalize_DebitCreditSign(t *testing.T) {
	data := workbook(t, header,
		[]interface{}{"01-03-2024", "", "PAGAMENTO", "", "45,00", "", ""},
		[]interface{}{"02-03-2024", "", "DEPOSITO", "", "", "100,00", ""},
		[]interface{}{"03-03-2024", "", "DEBITO COM SINAL", "", "-7,00", "", ""},
	)

	outcomes := normalizeAll(t, data, rc)
	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		require.Equal(t, parser.Accepted, o.Kind, o.Reason)
	}
	assert.True(t, outcomes[0].Candidate.Amount.Equal(decimal.RequireFromString("-45")), "debit is negative")
	assert.True(t, outcomes[1].Candidate.Amount.Equal(decimal.RequireFromString("100")), "credit is positive")
	assert.True(t, outcomes[2].Candidate.Amount.Equal(decimal.RequireFromString("-7")), "debit stays negative when signed")
}

func TestNormalize_AmountErrors(t *testing.T) {
	data := workbook(t, header,
		[]interface{}{"01-03-2024", "", "AMBOS", "", "10,00", "5,00", ""},
		[]interface{}{"02-03-2024", "", "NADA", "", "", "", ""},
		[]interface{}{"03-03-2024", "", "LIXO", "abc", "", "", ""},
	)

	outcomes := normalizeAll(t, data, rc)
	require.Len(t, outcomes, 3)
	assert.Equal(t, parser.RowError, outcomes[0].Kind)
	assert.Contains(t, outcomes[0].Reason, "both debit and credit")
	assert.Equal(t, parser.RowError, outcomes[1].Kind, "no zero-amount transactions")
	assert.Contains(t, outcomes[1].Reason, "no amount")
	assert.Equal(t, parser.RowError, outcomes[2].Kind)
}

func TestNormalize_ValorEmEURFallback(t *testing.T) {
	data := workbook(t, header,
		[]interface{}{"01-03-2024", "", "CAMBIO", "", "", "", "-8,30"},
		[]interface{}{"02-03-2024", "", "MONTANTE INVALIDO", "n/a", "", "", "-3,10"},
	)

	usd := rc
	usd.HomeCurrency = "USD"
	outcomes := normalizeAll(t, data, usd)
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		require.Equal(t, parser.Accepted, o.Kind, o.Reason)
		assert.Equal(t, "EUR", o.Candidate.Currency, "fallback column forces EUR")
	}
	assert.True(t, outcomes[0].Candidate.Amount.Equal(decimal.RequireFromString("-8.3")))
	assert.True(t, outcomes[1].Candidate.Amount.Equal(decimal.RequireFromString("-3.1")))
}

func TestNormalize_CurrencyDefaults(t *testing.T) {
	data := workbook(t, header,
		[]interface{}{"01-03-2024", "", "SEM MOEDA", "-1,00", "", "", ""},
	)

	gbp := rc
	gbp.HomeCurrency = "GBP"
	outcomes := normalizeAll(t, data, gbp)
	require.Equal(t, parser.Accepted, outcomes[0].Kind)
	assert.Equal(t, "GBP", outcomes[0].Candidate.Currency, "account currency is the default")

	none := rc
	none.HomeCurrency = ""
	outcomes = normalizeAll(t, data, none)
	require.Equal(t, parser.Accepted, outcomes[0].Kind)
	assert.Equal(t, "EUR", outcomes[0].Candidate.Currency, "format home currency is the last resort")
}

func TestNormalize_DateErrors(t *testing.T) {
	data := workbook(t, header,
		[]interface{}{"", "", "SEM DATA", "-1,00", "", "", ""},
		[]interface{}{"30-02-2024", "", "DATA IMPOSSIVEL", "-1,00", "", "", ""},
		[]interface{}{"2024/03/01", "", "FORMATO ERRADO", "-1,00", "", "", ""},
	)

	outcomes := normalizeAll(t, data, rc)
	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.Equal(t, parser.RowError, o.Kind)
	}
	assert.Contains(t, outcomes[0].Reason, "line 17")
}

func TestRows_NumericCells(t *testing.T) {
	data := workbook(t, header,
		[]interface{}{45352, "", "NUMERICO", -12.5, "", "", ""},
	)

	outcomes := normalizeAll(t, data, rc)
	require.Len(t, outcomes, 1)
	require.Equal(t, parser.Accepted, outcomes[0].Kind, outcomes[0].Reason)
	assert.Equal(t, "2024-03-01", outcomes[0].Candidate.DateString())
	assert.True(t, outcomes[0].Candidate.Amount.Equal(decimal.RequireFromString("-12.5")))
}

func TestRows_SkipsEmptyRowsAndKeepsLineNumbers(t *testing.T) {
	data := workbook(t, header,
		[]interface{}{"01-03-2024", "", "A", "-1,00", "", "", ""},
		[]interface{}{"", "", "", "", "", "", ""},
		[]interface{}{"03-03-2024", "", "B", "-2,00", "", "", ""},
	)

	rows, err := NewParser().Rows(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 17, rows[0].Line)
	assert.Equal(t, 19, rows[1].Line)
	assert.Equal(t, "B", rows[1].Get(ColDescription))
}

func TestRows_FormatErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"not a workbook", []byte("Data Mov.,Montante\n")},
		{"no header row", workbook(t, nil)},
		{"header without date column", workbook(t, []interface{}{"Data", "Descrição", "Montante"},
			[]interface{}{"01-03-2024", "X", "-1,00"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser().Rows(context.Background(), tt.data)
			require.Error(t, err)

			var fe *parser.FormatError
			require.True(t, errors.As(err, &fe), "got %T: %v", err, err)
			assert.Equal(t, domain.BankFormatBPI, fe.Format)
		})
	}
}

func TestRows_HeaderOnly(t *testing.T) {
	rows, err := NewParser().Rows(context.Background(), workbook(t, header))
	require.NoError(t, err)
	assert.Empty(t, rows)
}
