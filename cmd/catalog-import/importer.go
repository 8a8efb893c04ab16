package main

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/till/internal/domain/customer"
	"github.com/xenking/till/internal/domain/product"
)

const (
	filterCapacity = 1_000_000
	filterFPR      = 0.001
	maxLineBytes   = 1 << 20
	progressEvery  = 100_000
)

type productWriter interface {
	UpsertProducts(ctx context.Context, products []product.Product) error
}

type customerWriter interface {
	UpsertCustomers(ctx context.Context, customers []customer.Customer) error
}

type stats struct {
	read       atomic.Int64
	written    atomic.Int64
	invalid    atomic.Int64
	superseded atomic.Int64
}

func (s *stats) fields() []zap.Field {
	return []zap.Field{
		zap.Int64("read", s.read.Load()),
		zap.Int64("written", s.written.Load()),
		zap.Int64("invalid", s.invalid.Load()),
		zap.Int64("superseded", s.superseded.Load()),
	}
}

type importer struct {
	lg        *zap.Logger
	batchSize int
	capacity  uint
}

func newImporter(lg *zap.Logger, batchSize int) *importer {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &importer{lg: lg, batchSize: batchSize, capacity: filterCapacity}
}

// importProducts upserts the products of all files. When an id occurs in
// several files the record of the last file wins.
//
// Files are streamed twice. Pass one builds a bloom filter of ids per file.
// Pass two writes every record that no later file can contain right away and
// parks the rest, so only possible duplicates are held in memory.
func (imp *importer) importProducts(ctx context.Context, w productWriter, files []string) (*stats, error) {
	st := &stats{}

	filters, err := imp.buildFilters(ctx, files)
	if err != nil {
		return nil, errors.Wrap(err, "build filters")
	}

	parked := newContested()
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			return imp.writeFile(gctx, w, i, path, filters, parked, st)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rest, dropped := parked.resolve()
	st.superseded.Add(int64(dropped))
	if err := imp.flushProducts(ctx, w, rest, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (imp *importer) buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			f := bloom.NewWithEstimates(imp.capacity, filterFPR)
			err := streamLines(ctx, path, func(line []byte) error {
				if p, err := decodeProduct(line); err == nil {
					f.AddString(p.ID)
				}
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			filters[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

func (imp *importer) writeFile(
	ctx context.Context,
	w productWriter,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	parked *contested,
	st *stats,
) error {
	batch := make([]product.Product, 0, imp.batchSize)
	var line int

	err := streamLines(ctx, path, func(raw []byte) error {
		line++
		st.read.Add(1)
		if n := st.read.Load(); n%progressEvery == 0 {
			imp.lg.Info("Import progress", zap.Int64("read", n))
		}

		p, err := decodeProduct(raw)
		if err != nil {
			st.invalid.Add(1)
			imp.lg.Debug("Skip invalid product", zap.String("file", path), zap.Int("line", line), zap.Error(err))
			return nil
		}

		if mayContain(filters[idx+1:], p.ID) {
			if parked.put(idx, line, p) {
				st.superseded.Add(1)
			}
			return nil
		}
		if mayContain(filters[:idx], p.ID) {
			parked.markFinal(p.ID)
		}

		batch = append(batch, p)
		if len(batch) < imp.batchSize {
			return nil
		}
		err = imp.flushProducts(ctx, w, batch, st)
		batch = batch[:0]
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "import %s", path)
	}
	return imp.flushProducts(ctx, w, batch, st)
}

func (imp *importer) flushProducts(ctx context.Context, w productWriter, products []product.Product, st *stats) error {
	for start := 0; start < len(products); start += imp.batchSize {
		chunk := products[start:min(start+imp.batchSize, len(products))]
		if err := w.UpsertProducts(ctx, chunk); err != nil {
			return err
		}
		st.written.Add(int64(len(chunk)))
	}
	return nil
}

// importCustomers upserts customers file by file, in order.
func (imp *importer) importCustomers(ctx context.Context, w customerWriter, files []string) (*stats, error) {
	st := &stats{}
	batch := make([]customer.Customer, 0, imp.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := w.UpsertCustomers(ctx, batch); err != nil {
			return err
		}
		st.written.Add(int64(len(batch)))
		batch = batch[:0]
		return nil
	}

	for _, path := range files {
		err := streamLines(ctx, path, func(raw []byte) error {
			st.read.Add(1)
			c, err := decodeCustomer(raw)
			if err != nil {
				st.invalid.Add(1)
				return nil
			}
			batch = append(batch, c)
			if len(batch) < imp.batchSize {
				return nil
			}
			return flush()
		})
		if err != nil {
			return nil, errors.Wrapf(err, "import %s", path)
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return st, nil
}

func mayContain(filters []*bloom.BloomFilter, id string) bool {
	for _, f := range filters {
		if f.TestString(id) {
			return true
		}
	}
	return false
}

type parkedProduct struct {
	file, line int
	product    product.Product
}

// contested holds records that a later file may override.
type contested struct {
	mu    sync.Mutex
	best  map[string]parkedProduct
	final map[string]struct{}
}

func newContested() *contested {
	return &contested{
		best:  make(map[string]parkedProduct),
		final: make(map[string]struct{}),
	}
}

// put parks p and reports whether an already parked record lost to it or
// p itself lost.
func (c *contested) put(file, line int, p product.Product) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.best[p.ID]
	if ok && (cur.file > file || (cur.file == file && cur.line > line)) {
		return true
	}
	c.best[p.ID] = parkedProduct{file: file, line: line, product: p}
	return ok
}

// markFinal records that id was written from the last file containing it.
func (c *contested) markFinal(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.final[id] = struct{}{}
}

// resolve returns the parked records that still need writing and the number
// dropped because a later file already wrote the id.
func (c *contested) resolve() ([]product.Product, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var (
		out     []product.Product
		dropped int
	)
	for id, p := range c.best {
		if _, ok := c.final[id]; ok {
			dropped++
			continue
		}
		out = append(out, p.product)
	}
	return out, dropped
}

// streamLines calls fn for every non-empty line of path, decompressing
// .gz files on the fly. The slice passed to fn is only valid during the call.
func streamLines(ctx context.Context, path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

func decodeProduct(line []byte) (product.Product, error) {
	var p product.Product
	err := jx.DecodeBytes(line).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "sku":
			p.SKU, err = d.Str()
		case "category":
			p.Category, err = d.Str()
		case "productType":
			p.ProductType, err = d.Str()
		case "image":
			p.Image, err = d.Str()
		case "sellingPrice", "price":
			p.SellingPrice, err = decodeDecimal(d)
		case "mrp":
			p.MRP, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	})
	switch {
	case err != nil:
		return p, errors.Wrap(err, "decode product")
	case p.ID == "":
		return p, errors.New("product id is empty")
	case p.Name == "":
		return p, errors.Errorf("product %s has no name", p.ID)
	case p.SellingPrice.IsNegative():
		return p, errors.Errorf("product %s has a negative price", p.ID)
	}
	if p.ProductType == "" {
		p.ProductType = product.TypeRetail
	}
	return p, nil
}

func decodeCustomer(line []byte) (customer.Customer, error) {
	var c customer.Customer
	err := jx.DecodeBytes(line).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			c.ID, err = d.Str()
		case "fullName":
			c.FullName, err = d.Str()
		case "phone":
			c.Phone, err = d.Str()
		case "email":
			c.Email, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	switch {
	case err != nil:
		return c, errors.Wrap(err, "decode customer")
	case c.ID == "":
		return c, errors.New("customer id is empty")
	case c.FullName == "":
		return c, errors.Errorf("customer %s has no name", c.ID)
	}
	return c, nil
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	}
}
