package packing

import "sort"

// The bin packer works on integer millimetres and grams so that volume and
// intersection math stays exact. Items are placed largest-volume first; each
// subsequent item is tried at pivot points derived from the already placed
// items along the three axes, in any of the six axis-aligned rotations.

const (
	axisWidth = iota
	axisHeight
	axisDepth
)

type binItem struct {
	index  int
	width  int64
	height int64
	depth  int64
	weight int64

	position [3]int64
	rotation int
}

func (it *binItem) volume() int64 {
	return it.width * it.height * it.depth
}

// dimension returns the item's extents under its current rotation.
func (it *binItem) dimension() [3]int64 {
	switch it.rotation {
	case 1:
		return [3]int64{it.height, it.width, it.depth}
	case 2:
		return [3]int64{it.height, it.depth, it.width}
	case 3:
		return [3]int64{it.depth, it.height, it.width}
	case 4:
		return [3]int64{it.depth, it.width, it.height}
	case 5:
		return [3]int64{it.width, it.depth, it.height}
	default:
		return [3]int64{it.width, it.height, it.depth}
	}
}

// rectIntersect reports overlap of the two items' half-open extents on the
// given axes. The intervals are compared directly; halving centre distances
// would truncate odd sums and miss sub-unit overlaps.
func rectIntersect(a, b *binItem, x, y int) bool {
	da := a.dimension()
	db := b.dimension()

	return a.position[x] < b.position[x]+db[x] &&
		b.position[x] < a.position[x]+da[x] &&
		a.position[y] < b.position[y]+db[y] &&
		b.position[y] < a.position[y]+da[y]
}

func intersect(a, b *binItem) bool {
	return rectIntersect(a, b, axisWidth, axisHeight) &&
		rectIntersect(a, b, axisHeight, axisDepth) &&
		rectIntersect(a, b, axisWidth, axisDepth)
}

type bin struct {
	width     int64
	height    int64
	depth     int64
	maxWeight int64
	items     []*binItem
}

func (b *bin) packedWeight() int64 {
	var total int64
	for _, it := range b.items {
		total += it.weight
	}
	return total
}

// putItem attempts to place the item at the pivot in any rotation,
// respecting bin bounds, already placed items, and the weight capacity.
func (b *bin) putItem(item *binItem, pivot [3]int64) bool {
	item.position = pivot
	for rotation := 0; rotation < 6; rotation++ {
		item.rotation = rotation
		d := item.dimension()

		if b.width < pivot[axisWidth]+d[axisWidth] ||
			b.height < pivot[axisHeight]+d[axisHeight] ||
			b.depth < pivot[axisDepth]+d[axisDepth] {
			continue
		}

		collides := false
		for _, placed := range b.items {
			if intersect(placed, item) {
				collides = true
				break
			}
		}
		if collides {
			continue
		}

		if b.maxWeight > 0 && b.packedWeight()+item.weight > b.maxWeight {
			return false
		}

		b.items = append(b.items, item)
		return true
	}
	item.rotation = 0
	return false
}

// packBin places as many items as possible into the bin and returns the
// fitted and unfit sets. Input order is not preserved; items are considered
// in descending volume order.
func packBin(items []*binItem, b *bin) (fitted, unfit []*binItem) {
	sorted := make([]*binItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].volume() > sorted[j].volume()
	})

	for _, item := range sorted {
		if len(b.items) == 0 {
			if b.putItem(item, [3]int64{0, 0, 0}) {
				continue
			}
			unfit = append(unfit, item)
			continue
		}

		placed := false
	axes:
		for axis := 0; axis < 3; axis++ {
			for _, anchor := range b.items {
				pivot := anchor.position
				d := anchor.dimension()
				pivot[axis] += d[axis]
				if b.putItem(item, pivot) {
					placed = true
					break axes
				}
			}
		}
		if !placed {
			unfit = append(unfit, item)
		}
	}

	fitted = b.items
	return fitted, unfit
}
