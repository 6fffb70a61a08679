package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bryan-buckman/dropwatch/internal/freshness"
	"github.com/bryan-buckman/dropwatch/internal/model"
)

// queries holds the SQL shared by every backend. Statements are written
// with ? placeholders and rebound for the driver in use.
type queries struct {
	conn *sqlx.DB
}

const summaryColumns = `id, name, price, image_url, product_url, status, timestamp, batch_id, ordinal`

const upsertSummarySQL = `
	INSERT INTO releases (id, name, price, image_url, product_url, status, timestamp, batch_id, ordinal)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		name = excluded.name,
		price = excluded.price,
		image_url = excluded.image_url,
		product_url = excluded.product_url,
		status = excluded.status,
		timestamp = excluded.timestamp,
		batch_id = excluded.batch_id,
		ordinal = excluded.ordinal`

const upsertDetailSQL = `
	INSERT INTO shoe_details (
		id, name, price, image_url, image_urls, product_url, status,
		description, colorway, style, sizes, is_launched,
		stockx_url, stockx_price, stockx_last_sale, stockx_sales, stockx_name, stockx_sku,
		timestamp, last_updated
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		name = excluded.name,
		price = excluded.price,
		image_url = excluded.image_url,
		image_urls = excluded.image_urls,
		product_url = excluded.product_url,
		status = excluded.status,
		description = excluded.description,
		colorway = excluded.colorway,
		style = excluded.style,
		sizes = excluded.sizes,
		is_launched = excluded.is_launched,
		stockx_url = excluded.stockx_url,
		stockx_price = excluded.stockx_price,
		stockx_last_sale = excluded.stockx_last_sale,
		stockx_sales = excluded.stockx_sales,
		stockx_name = excluded.stockx_name,
		stockx_sku = excluded.stockx_sku,
		timestamp = excluded.timestamp,
		last_updated = excluded.last_updated`

const itemSelect = `
	SELECT
		r.id, r.name, r.price, r.image_url, r.product_url, r.status, r.timestamp, r.batch_id, r.ordinal,
		d.id AS d_id, d.name AS d_name, d.price AS d_price, d.image_url AS d_image_url,
		d.image_urls AS d_image_urls, d.product_url AS d_product_url, d.status AS d_status,
		d.description AS d_description, d.colorway AS d_colorway, d.style AS d_style,
		d.sizes AS d_sizes, d.is_launched AS d_is_launched,
		d.stockx_url AS d_stockx_url, d.stockx_price AS d_stockx_price,
		d.stockx_last_sale AS d_stockx_last_sale, d.stockx_sales AS d_stockx_sales,
		d.stockx_name AS d_stockx_name, d.stockx_sku AS d_stockx_sku,
		d.timestamp AS d_timestamp, d.last_updated AS d_last_updated
	FROM releases r
	LEFT JOIN shoe_details d ON r.id = d.id`

// itemRow is a release joined with its optional detail row.
type itemRow struct {
	model.ReleaseSummary

	DID             sql.NullString  `db:"d_id"`
	DName           sql.NullString  `db:"d_name"`
	DPrice          sql.NullString  `db:"d_price"`
	DImageURL       sql.NullString  `db:"d_image_url"`
	DImageURLs      sql.NullString  `db:"d_image_urls"`
	DProductURL     sql.NullString  `db:"d_product_url"`
	DStatus         sql.NullString  `db:"d_status"`
	DDescription    sql.NullString  `db:"d_description"`
	DColorway       sql.NullString  `db:"d_colorway"`
	DStyle          sql.NullString  `db:"d_style"`
	DSizes          sql.NullString  `db:"d_sizes"`
	DIsLaunched     sql.NullBool    `db:"d_is_launched"`
	DStockXURL      sql.NullString  `db:"d_stockx_url"`
	DStockXPrice    sql.NullFloat64 `db:"d_stockx_price"`
	DStockXLastSale sql.NullFloat64 `db:"d_stockx_last_sale"`
	DStockXSales    sql.NullInt64   `db:"d_stockx_sales"`
	DStockXName     sql.NullString  `db:"d_stockx_name"`
	DStockXSKU      sql.NullString  `db:"d_stockx_sku"`
	DTimestamp      sql.NullTime    `db:"d_timestamp"`
	DLastUpdated    sql.NullTime    `db:"d_last_updated"`
}

func (r itemRow) toStored() *model.StoredItem {
	out := &model.StoredItem{Summary: r.ReleaseSummary}
	if !r.DID.Valid {
		return out
	}
	d := &model.ShoeDetail{
		ReleaseSummary: model.ReleaseSummary{
			ID:         r.DID.String,
			Name:       r.DName.String,
			Price:      r.DPrice.String,
			ImageURL:   r.DImageURL.String,
			ProductURL: r.DProductURL.String,
			Status:     r.DStatus.String,
			Timestamp:  r.DTimestamp.Time,
		},
		Resale: model.Resale{
			StockXURL:      r.DStockXURL.String,
			StockXPrice:    r.DStockXPrice.Float64,
			StockXLastSale: r.DStockXLastSale.Float64,
			StockXSales:    int(r.DStockXSales.Int64),
			StockXName:     r.DStockXName.String,
			StockXSKU:      r.DStockXSKU.String,
		},
		Description: r.DDescription.String,
		Colorway:    r.DColorway.String,
		Style:       r.DStyle.String,
		Sizes:       decodeSizes(r.DSizes.String),
		ImageURLs:   decodeStrings(r.DImageURLs.String),
		IsLaunched:  r.DIsLaunched.Bool,
	}
	if r.DLastUpdated.Valid {
		t := r.DLastUpdated.Time
		d.LastUpdated = &t
	}
	out.Detail = d
	return out
}

func validateSummary(i int, r model.ReleaseSummary) error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: release %d has no id", ErrValidation, i)
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: release %q has no name", ErrValidation, r.ID)
	}
	return nil
}

// UpsertSummaries writes a listing in one transaction. Any invalid row
// rolls back the whole batch.
func (q *queries) UpsertSummaries(ctx context.Context, batch []model.ReleaseSummary) error {
	if len(batch) == 0 {
		return ErrEmptyBatch
	}
	tx, err := q.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, q.conn.Rebind(upsertSummarySQL))
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, r := range batch {
		if err := validateSummary(i, r); err != nil {
			return err
		}
		ts := r.Timestamp
		if ts.IsZero() {
			ts = now
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.Name, r.Price, r.ImageURL, r.ProductURL, r.Status,
			ts.UTC(), r.BatchID, r.Ordinal,
		); err != nil {
			return fmt.Errorf("upsert release %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// GetRecentSummaries returns the newest releases, newest first.
func (q *queries) GetRecentSummaries(ctx context.Context, limit int) ([]model.ReleaseSummary, error) {
	var out []model.ReleaseSummary
	err := q.conn.SelectContext(ctx, &out, q.conn.Rebind(`
		SELECT `+summaryColumns+`
		FROM releases
		ORDER BY timestamp DESC, ordinal ASC
		LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountSummaries returns the number of stored releases.
func (q *queries) CountSummaries(ctx context.Context) (int, error) {
	var n int
	err := q.conn.GetContext(ctx, &n, "SELECT COUNT(*) FROM releases")
	return n, err
}

// TrimToMostRecent deletes every release outside the newest keep rows.
// Detail rows are left in place; see DeleteOrphanDetails.
func (q *queries) TrimToMostRecent(ctx context.Context, keep int) (int64, error) {
	res, err := q.conn.ExecContext(ctx, q.conn.Rebind(`
		DELETE FROM releases
		WHERE id NOT IN (
			SELECT id FROM releases
			ORDER BY timestamp DESC, ordinal ASC
			LIMIT ?
		)`), keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpsertDetail saves the detail record for a release.
func (q *queries) UpsertDetail(ctx context.Context, id string, d model.ShoeDetail) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: detail has no id", ErrValidation)
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: detail %q has no name", ErrValidation, id)
	}
	sizes := d.Sizes
	if sizes == nil {
		sizes = []model.Size{}
	}
	sizesJSON, err := encodeJSON(sizes)
	if err != nil {
		return fmt.Errorf("encode sizes: %w", err)
	}
	images := d.ImageURLs
	if images == nil {
		images = []string{}
	}
	imagesJSON, err := encodeJSON(images)
	if err != nil {
		return fmt.Errorf("encode image urls: %w", err)
	}

	now := time.Now().UTC()
	ts := d.Timestamp
	if ts.IsZero() {
		ts = now
	}
	lastUpdated := now
	if d.LastUpdated != nil && !d.LastUpdated.IsZero() {
		lastUpdated = *d.LastUpdated
	}

	_, err = q.conn.ExecContext(ctx, q.conn.Rebind(upsertDetailSQL),
		id, d.Name, d.Price, d.ImageURL, imagesJSON, d.ProductURL, d.Status,
		d.Description, d.Colorway, d.Style, sizesJSON, d.IsLaunched,
		d.StockXURL, d.StockXPrice, d.StockXLastSale, d.StockXSales, d.StockXName, d.StockXSKU,
		ts.UTC(), lastUpdated.UTC(),
	)
	return err
}

func (q *queries) getOne(ctx context.Context, query string, args ...any) (*model.StoredItem, error) {
	var row itemRow
	err := q.conn.GetContext(ctx, &row, q.conn.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toStored(), nil
}

// GetByID looks a release up by its exact id.
func (q *queries) GetByID(ctx context.Context, id string) (*model.StoredItem, error) {
	return q.getOne(ctx, itemSelect+` WHERE r.id = ?`, id)
}

// likeEscaper makes a user-supplied prefix literal inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// GetByIDPrefix returns the newest release whose id starts with prefix.
func (q *queries) GetByIDPrefix(ctx context.Context, prefix string) (*model.StoredItem, error) {
	if prefix == "" {
		return nil, ErrNotFound
	}
	return q.getOne(ctx, itemSelect+`
		WHERE r.id LIKE ? ESCAPE '\'
		ORDER BY r.timestamp DESC, r.ordinal ASC
		LIMIT 1`, likeEscaper.Replace(prefix)+"%")
}

type candidateRow struct {
	ID          string       `db:"id"`
	ProductURL  string       `db:"product_url"`
	LastUpdated sql.NullTime `db:"last_updated"`
}

// GetStaleDetailCandidates lists releases whose detail is missing or older
// than the freshness window at now.
func (q *queries) GetStaleDetailCandidates(ctx context.Context, now time.Time) ([]model.RefreshCandidate, error) {
	var rows []candidateRow
	err := q.conn.SelectContext(ctx, &rows, q.conn.Rebind(`
		SELECT r.id, r.product_url, d.last_updated
		FROM releases r
		LEFT JOIN shoe_details d ON r.id = d.id
		WHERE d.last_updated IS NULL OR d.last_updated < ?
		ORDER BY r.timestamp DESC, r.ordinal ASC`), freshness.Cutoff(now).UTC())
	if err != nil {
		return nil, err
	}
	out := make([]model.RefreshCandidate, 0, len(rows))
	for _, r := range rows {
		c := model.RefreshCandidate{ID: r.ID, ProductURL: r.ProductURL}
		if r.LastUpdated.Valid {
			t := r.LastUpdated.Time
			c.LastUpdated = &t
		}
		out = append(out, c)
	}
	return out, nil
}

// DeleteOrphanDetails removes detail rows whose release was trimmed.
func (q *queries) DeleteOrphanDetails(ctx context.Context) (int64, error) {
	res, err := q.conn.ExecContext(ctx, `
		DELETE FROM shoe_details
		WHERE id NOT IN (SELECT id FROM releases)`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
