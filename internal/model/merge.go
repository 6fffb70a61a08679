package model

import (
	"reflect"
	"time"

	"dario.cat/mergo"
)

// timeTransformer lets a non-zero time override the destination while a
// zero time leaves it alone; mergo treats zero structs as non-empty otherwise.
type timeTransformer struct{}

func (timeTransformer) Transformer(typ reflect.Type) func(dst, src reflect.Value) error {
	if typ != reflect.TypeOf(time.Time{}) {
		return nil
	}
	return func(dst, src reflect.Value) error {
		if !dst.CanSet() {
			return nil
		}
		if t, ok := src.Interface().(time.Time); ok && !t.IsZero() {
			dst.Set(src)
		}
		return nil
	}
}

// Merge overlays detail onto summary. Non-empty detail fields win; empty
// ones never blank out the summary. A nil detail yields the bare summary.
func Merge(summary ReleaseSummary, detail *ShoeDetail) (Item, error) {
	item := Item{ReleaseSummary: summary}
	if detail != nil {
		d := *detail
		if err := mergo.Merge(&item, d, mergo.WithOverride, mergo.WithTransformers(timeTransformer{})); err != nil {
			return Item{ReleaseSummary: summary}, err
		}
	}
	if item.Sizes == nil {
		item.Sizes = []Size{}
	}
	if item.ImageURLs == nil {
		item.ImageURLs = []string{}
	}
	return item, nil
}

// DetailFromRaw builds the detail record for a release from a fresh scrape.
func DetailFromRaw(summary ReleaseSummary, raw RawDetail, now time.Time) ShoeDetail {
	d := ShoeDetail{
		ReleaseSummary: summary,
		Description:    raw.Description,
		Colorway:       raw.Colorway,
		Style:          raw.Style,
		Sizes:          raw.Sizes,
		ImageURLs:      OrderImageURLs(raw.ImageURLs),
		IsLaunched:     raw.IsLaunched,
	}
	if raw.Name != "" {
		d.Name = raw.Name
	}
	if raw.Price != "" {
		d.Price = raw.Price
	}
	if raw.ImageURL != "" {
		d.ImageURL = raw.ImageURL
	}
	if raw.Status != "" {
		d.Status = raw.Status
	}
	if d.Sizes == nil {
		d.Sizes = []Size{}
	}
	d.Timestamp = now
	d.LastUpdated = &now
	return d
}
