package repository

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"retail-ledger/internal/domain"
)

// Audit log lines are pipe-delimited key=value tags:
//
//	v=1|id=<uuid>|ts=2024-01-02 15:04:05|acct=1001|op=DEPOSIT|amt=100.00|bal=1100.00|ref=|cp=0|detail=
//
// Readers ignore tags they do not know, so new fields can be appended
// without breaking older logs.

const (
	tagVersion      = "v"
	tagID           = "id"
	tagTimestamp    = "ts"
	tagAccount      = "acct"
	tagOperation    = "op"
	tagAmount       = "amt"
	tagBalance      = "bal"
	tagReference    = "ref"
	tagCounterparty = "cp"
	tagDetail       = "detail"
)

var detailEscaper = strings.NewReplacer(`\`, `\\`, `|`, `\p`, "\n", `\n`, "\r", `\r`)

func EncodeRecord(rec domain.TransactionRecord) string {
	amount := ""
	if rec.Amount != nil {
		amount = rec.Amount.StringFixed(2)
	}
	ref := ""
	if rec.Reference != nil {
		ref = rec.Reference.String()
	}

	fields := []string{
		tagVersion + "=" + strconv.Itoa(rec.Version),
		tagID + "=" + rec.ID.String(),
		tagTimestamp + "=" + rec.Timestamp.Format(domain.TimestampLayout),
		tagAccount + "=" + strconv.FormatInt(rec.AccountNumber, 10),
		tagOperation + "=" + string(rec.Operation),
		tagAmount + "=" + amount,
		tagBalance + "=" + rec.BalanceAfter.StringFixed(2),
		tagReference + "=" + ref,
		tagCounterparty + "=" + strconv.FormatInt(rec.Counterparty, 10),
		tagDetail + "=" + detailEscaper.Replace(rec.Detail),
	}
	return strings.Join(fields, "|")
}

func DecodeRecord(line string) (domain.TransactionRecord, error) {
	var rec domain.TransactionRecord
	tags := make(map[string]string)
	for _, field := range strings.Split(line, "|") {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return rec, fmt.Errorf("malformed field %q", field)
		}
		tags[key] = value
	}

	var err error
	if v, ok := tags[tagVersion]; ok {
		if rec.Version, err = strconv.Atoi(v); err != nil {
			return rec, fmt.Errorf("bad version %q: %w", v, err)
		}
	}
	if rec.Version < 1 {
		return rec, fmt.Errorf("missing record version")
	}

	if rec.ID, err = uuid.Parse(tags[tagID]); err != nil {
		return rec, fmt.Errorf("bad id: %w", err)
	}
	if rec.Timestamp, err = time.ParseInLocation(domain.TimestampLayout, tags[tagTimestamp], time.Local); err != nil {
		return rec, fmt.Errorf("bad timestamp: %w", err)
	}
	if rec.AccountNumber, err = strconv.ParseInt(tags[tagAccount], 10, 64); err != nil {
		return rec, fmt.Errorf("bad account number: %w", err)
	}
	rec.Operation = domain.OperationKind(tags[tagOperation])
	if rec.Operation == "" {
		return rec, fmt.Errorf("missing operation")
	}

	if amt := tags[tagAmount]; amt != "" {
		amount, err := decimal.NewFromString(amt)
		if err != nil {
			return rec, fmt.Errorf("bad amount: %w", err)
		}
		rec.Amount = &amount
	}
	if rec.BalanceAfter, err = decimal.NewFromString(tags[tagBalance]); err != nil {
		return rec, fmt.Errorf("bad balance: %w", err)
	}
	if ref := tags[tagReference]; ref != "" {
		id, err := uuid.Parse(ref)
		if err != nil {
			return rec, fmt.Errorf("bad reference: %w", err)
		}
		rec.Reference = &id
	}
	if cp := tags[tagCounterparty]; cp != "" {
		if rec.Counterparty, err = strconv.ParseInt(cp, 10, 64); err != nil {
			return rec, fmt.Errorf("bad counterparty: %w", err)
		}
	}
	rec.Detail = unescapeDetail(tags[tagDetail])

	return rec, nil
}

func unescapeDetail(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i == len(s)-1 {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'p':
			b.WriteByte('|')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
