package main

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-engine/internal/domain/coupon"
)

const fieldCount = 5

var hundred = decimal.NewFromInt(100)

// parseLine parses CODE;PERCENT;LIMIT;FROM;UNTIL. LIMIT 0 means unlimited;
// FROM and UNTIL are RFC 3339 timestamps and may be empty.
func parseLine(line string) (coupon.Ticket, error) {
	fields := strings.Split(line, ";")
	if len(fields) != fieldCount {
		return coupon.Ticket{}, errors.Errorf("want %d fields, got %d", fieldCount, len(fields))
	}

	t := coupon.Ticket{
		ID:       uuid.NewString(),
		Code:     coupon.NormalizeCode(fields[0]),
		IsActive: true,
	}
	if t.Code == "" {
		return t, errors.New("empty code")
	}

	var err error
	if t.DiscountPercent, err = decimal.NewFromString(strings.TrimSpace(fields[1])); err != nil {
		return t, errors.Wrap(err, "percent")
	}
	if t.DiscountPercent.IsNegative() || t.DiscountPercent.GreaterThan(hundred) {
		return t, errors.Errorf("percent %s out of range", t.DiscountPercent)
	}
	if t.UsageLimit, err = strconv.Atoi(strings.TrimSpace(fields[2])); err != nil {
		return t, errors.Wrap(err, "limit")
	}
	if t.UsageLimit < 0 {
		return t, errors.Errorf("negative limit %d", t.UsageLimit)
	}
	if t.ValidFrom, err = parseBound(fields[3]); err != nil {
		return t, errors.Wrap(err, "valid from")
	}
	if t.ValidUntil, err = parseBound(fields[4]); err != nil {
		return t, errors.Wrap(err, "valid until")
	}
	if t.ValidFrom != nil && t.ValidUntil != nil && t.ValidUntil.Before(*t.ValidFrom) {
		return t, errors.New("validity window ends before it starts")
	}
	return t, nil
}

func parseBound(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// streamGzFile calls fn for every non-blank, non-comment line of a gzip file
// with its 1-based line number.
func streamGzFile(ctx context.Context, path string, fn func(n int, line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	n := 0
	for scanner.Scan() {
		n++
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn(n, line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
