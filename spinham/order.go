package spinham

// Order identifies an interaction order together with its site-count variant.
// Order22 is a two-spin term between two sites, Order421 a four-spin term with
// three factors on the first site and one on the second, and so on.
type Order int

const (
	Order1 Order = iota
	Order21
	Order22
	Order31
	Order32
	Order33
	Order41
	Order421
	Order422
	Order43
	Order44
	numOrders
)

// orderPatterns maps every tensor axis to the site slot it binds to.
var orderPatterns = [numOrders]struct {
	name   string
	groups []int
}{
	Order1:   {name: "1", groups: []int{0}},
	Order21:  {name: "21", groups: []int{0, 0}},
	Order22:  {name: "22", groups: []int{0, 1}},
	Order31:  {name: "31", groups: []int{0, 0, 0}},
	Order32:  {name: "32", groups: []int{0, 0, 1}},
	Order33:  {name: "33", groups: []int{0, 1, 2}},
	Order41:  {name: "41", groups: []int{0, 0, 0, 0}},
	Order421: {name: "421", groups: []int{0, 0, 0, 1}},
	Order422: {name: "422", groups: []int{0, 0, 1, 1}},
	Order43:  {name: "43", groups: []int{0, 0, 1, 2}},
	Order44:  {name: "44", groups: []int{0, 1, 2, 3}},
}

// Orders returns all interaction orders.
func Orders() []Order {
	os := make([]Order, 0, numOrders)
	for o := range numOrders {
		os = append(os, o)
	}
	return os
}

func (o Order) String() string {
	if o < 0 || o >= numOrders {
		return "invalid"
	}
	return orderPatterns[o].name
}

// Rank is the number of spin factors, which equals the tensor rank.
func (o Order) Rank() int { return len(orderPatterns[o].groups) }

// Sites is the number of distinct site slots.
func (o Order) Sites() int { return orderPatterns[o].groups[len(orderPatterns[o].groups)-1] + 1 }

// Groups returns the site slot of every tensor axis.
func (o Order) Groups() []int { return orderPatterns[o].groups }

func (o Order) valid() bool { return o >= 0 && o < numOrders }

// groupSizes returns the number of axes bound to every site slot.
func (o Order) groupSizes() []int {
	sizes := make([]int, o.Sites())
	for _, g := range o.Groups() {
		sizes[g]++
	}
	return sizes
}
