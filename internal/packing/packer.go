package packing

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/asg-shop/api/internal/domain"
)

// Parcels below this weight are bumped up to the carrier's minimum billable
// weight in kilograms.
const minParcelWeight = 0.01

var (
	ErrEmptyCatalog   = errors.New("packing: box catalog is empty")
	ErrMissingExtents = errors.New("packing: item has no shipping dimensions")
)

// DefaultBoxes is the merchant's shipping box catalog, ordered ascending by
// volume. Dimensions are centimetres; the weight figure is the capacity used
// by the packing math, in kilograms.
var DefaultBoxes = []domain.Box{
	{Name: "small", Length: 15.24, Width: 15.24, Height: 10.16, Weight: 9},
	{Name: "medium", Length: 27.94, Width: 20.32, Height: 12.7, Weight: 18},
	{Name: "large", Length: 30.48, Width: 30.48, Height: 20.32, Weight: 27},
	{Name: "xlarge", Length: 45.72, Width: 35.56, Height: 25.4, Weight: 36},
}

// Pack distributes the items across the smallest set of catalog boxes that
// holds them, escalating through box sizes when items do not fit. An item too
// large for the largest box ships as its own oversized parcel. The catalog
// must be ordered ascending by volume and must not be empty.
func Pack(items []domain.Item, catalog []domain.Box) ([]domain.Parcel, error) {
	if len(catalog) == 0 {
		return nil, ErrEmptyCatalog
	}
	for _, item := range items {
		if item.Shipping == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingExtents, item.DisplayName)
		}
	}
	if len(items) == 0 {
		return nil, nil
	}

	largestIndex := len(catalog) - 1
	remaining := items
	boxIndex := 0
	var parcels []domain.Parcel

	for len(remaining) > 0 {
		box := normalizeBox(catalog[boxIndex])
		b := &bin{
			width:     mm(box.Width),
			height:    mm(box.Height),
			depth:     mm(box.Length),
			maxWeight: grams(box.Weight),
		}

		fitted, unfit := packBin(packerItems(remaining), b)

		if len(unfit) == 0 {
			parcels = append(parcels, packedParcel(remaining, box))
			break
		}

		if boxIndex < largestIndex {
			// Same items, next box size up.
			boxIndex++
			continue
		}

		if len(fitted) == 0 {
			// Nothing fits the largest box: each item ships as-is.
			for _, item := range remaining {
				parcels = append(parcels, oversizedParcel(item))
			}
			break
		}

		// Largest box filled; start over with a fresh small box for the rest.
		parcels = append(parcels, packedParcel(selectItems(remaining, fitted), box))
		remaining = selectItems(remaining, unfit)
		boxIndex = 0
	}

	return parcels, nil
}

// normalizeDims orients three extents ascending: length smallest, height
// middle, width largest. Packing treats rotations as free, so every item and
// box is compared in this canonical orientation.
func normalizeDims(length, width, height float64) (l, w, h float64) {
	dims := []float64{length, height, width}
	sort.Float64s(dims)
	return dims[0], dims[2], dims[1]
}

func normalizeBox(box domain.Box) domain.Box {
	box.Length, box.Width, box.Height = normalizeDims(box.Length, box.Width, box.Height)
	return box
}

// mm converts centimetres to whole millimetres.
func mm(cm float64) int64 {
	return int64(math.Round(cm * 10))
}

// grams converts kilograms to whole grams.
func grams(kg float64) int64 {
	return int64(math.Round(kg * 1000))
}

func packerItems(items []domain.Item) []*binItem {
	out := make([]*binItem, 0, len(items))
	for i, item := range items {
		l, w, h := normalizeDims(item.Shipping.Length, item.Shipping.Width, item.Shipping.Height)
		out = append(out, &binItem{
			index:  i,
			width:  mm(w),
			height: mm(h),
			depth:  mm(l),
			weight: grams(item.Shipping.Weight),
		})
	}
	return out
}

func selectItems(items []domain.Item, picked []*binItem) []domain.Item {
	out := make([]domain.Item, 0, len(picked))
	for _, p := range picked {
		out = append(out, items[p.index])
	}
	return out
}

func packedParcel(items []domain.Item, box domain.Box) domain.Parcel {
	var total float64
	for _, item := range items {
		total += item.Shipping.Weight
	}

	weight := math.Round(total*100) / 100
	if weight <= minParcelWeight {
		weight = minParcelWeight
	}

	return domain.Parcel{
		Length: box.Length,
		Width:  box.Width,
		Height: box.Height,
		Weight: weight,
		Items:  items,
	}
}

func oversizedParcel(item domain.Item) domain.Parcel {
	return domain.Parcel{
		Length:    item.Shipping.Length,
		Width:     item.Shipping.Width,
		Height:    item.Shipping.Height,
		Weight:    item.Shipping.Weight,
		Oversized: true,
		Items:     []domain.Item{item},
	}
}
