// Package cluster merges listings that are units of one physical building,
// either because their addresses normalize to the same grouping key or because
// they sit within a small radius of each other.
package cluster

import (
	"math"
	"sort"
	"strings"

	"github.com/mmcloughlin/geohash"
	"github.com/shopspring/decimal"

	"github.com/rental-insight/internal/address"
	"github.com/rental-insight/internal/models"
	"github.com/rental-insight/internal/projection"
)

// DefaultRadiusMeters is the proximity threshold for merging two groups
const DefaultRadiusMeters = 30.0

// BuildingCluster is a display-time merge of two or more listings believed to
// share one building, plus aggregates over its representative room tier.
type BuildingCluster struct {
	Key          string             `json:"key"`
	BuildingName string             `json:"buildingName"`
	Address      string             `json:"address"`
	Latitude     *float64           `json:"latitude,omitempty"`
	Longitude    *float64           `json:"longitude,omitempty"`
	Members      []*models.Property `json:"properties"`
	MemberCount  int                `json:"count"`

	AverageOccupancy float64 `json:"avgOccupancy"`

	// Aggregates over members whose room count equals RepresentativeRooms.
	// Price averages only cover tier members with pricing.
	RepresentativeRooms  int     `json:"representativeRooms"`
	TierMemberCount      int     `json:"tierCount"`
	PricedMemberCount    int     `json:"pricedCount"`
	AvgWeeklyPrice       float64 `json:"avgWeeklyPrice"`
	AvgWeeklyMaintenance float64 `json:"avgWeeklyMaintenance"`
	AvgCleaningFee       float64 `json:"avgCleaningFee"`
	AvgTierOccupancy     float64 `json:"avgTierOccupancy"`
	AvgMonthlyProfit     float64 `json:"avgMonthlyProfit"`
}

// Result is what the rendering layer consumes
type Result struct {
	SingleRooms    []*models.Property `json:"singleRooms"`
	BuildingGroups []BuildingCluster  `json:"buildingGroups"`
}

// Clusterer holds no mutable state and is safe for concurrent use
type Clusterer struct {
	radius    float64
	projector *projection.Projector
}

// NewClusterer creates a clusterer. A non-positive radius uses DefaultRadiusMeters.
func NewClusterer(radiusMeters float64, projector *projection.Projector) *Clusterer {
	if radiusMeters <= 0 {
		radiusMeters = DefaultRadiusMeters
	}
	if projector == nil {
		projector = projection.NewProjector(projection.DefaultAssumptions())
	}
	return &Clusterer{
		radius:    radiusMeters,
		projector: projector,
	}
}

// provisional is a pass-1 group: listings sharing region prefix and grouping key
type provisional struct {
	key         string
	groupingKey string
	members     []*models.Property
}

// Cluster partitions properties into singles and building clusters. The
// result does not depend on input order.
func (c *Clusterer) Cluster(properties []*models.Property) Result {
	result := Result{
		SingleRooms:    []*models.Property{},
		BuildingGroups: []BuildingCluster{},
	}

	byKey := make(map[string]*provisional)
	for _, p := range properties {
		if p == nil {
			continue
		}
		if strings.TrimSpace(p.Address) == "" {
			result.SingleRooms = append(result.SingleRooms, p)
			continue
		}
		gk := address.GroupingKey(p.Address)
		key := strings.Join(address.Tokens(p.Address, 3), " ") + "|" + gk
		g, ok := byKey[key]
		if !ok {
			g = &provisional{key: key, groupingKey: gk}
			byKey[key] = g
		}
		g.members = append(g.members, p)
	}

	groups := make([]*provisional, 0, len(byKey))
	for _, g := range byKey {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].key < groups[j].key })

	uf := newUnionFind(len(groups))
	c.mergeByGroupingKey(groups, uf)
	c.mergeByProximity(groups, uf)

	merged := make(map[int][]*models.Property)
	roots := make([]int, 0)
	for i, g := range groups {
		root := uf.find(i)
		if _, seen := merged[root]; !seen {
			roots = append(roots, root)
		}
		merged[root] = append(merged[root], g.members...)
	}
	sort.Ints(roots)

	for _, root := range roots {
		members := merged[root]
		if len(members) == 1 {
			result.SingleRooms = append(result.SingleRooms, members[0])
			continue
		}
		result.BuildingGroups = append(result.BuildingGroups, c.summarize(groups[root].key, members))
	}

	sortByOccupancy(result.SingleRooms)
	return result
}

func (c *Clusterer) mergeByGroupingKey(groups []*provisional, uf *unionFind) {
	first := make(map[string]int)
	for i, g := range groups {
		if g.groupingKey == "" {
			continue
		}
		if j, ok := first[g.groupingKey]; ok {
			uf.union(j, i)
			continue
		}
		first[g.groupingKey] = i
	}
}

type point struct {
	group    int
	lat, lng float64
}

// mergeByProximity buckets every coordinate by geohash and only compares
// points in the same or an adjacent cell. The precision is chosen so cells
// are at least radius wide at the highest latitude present, so no pair
// within radius is missed.
func (c *Clusterer) mergeByProximity(groups []*provisional, uf *unionFind) {
	var points []point
	var maxLat float64
	for i, g := range groups {
		for _, m := range g.members {
			if !m.HasCoordinates() {
				continue
			}
			points = append(points, point{group: i, lat: *m.Latitude, lng: *m.Longitude})
			maxLat = math.Max(maxLat, math.Abs(*m.Latitude))
		}
	}

	precision := precisionFor(c.radius, maxLat)
	buckets := make(map[string][]point)
	for _, pt := range points {
		cell := geohash.EncodeWithPrecision(pt.lat, pt.lng, precision)
		buckets[cell] = append(buckets[cell], pt)
	}

	for _, pt := range points {
		cell := geohash.EncodeWithPrecision(pt.lat, pt.lng, precision)
		for _, neighbor := range append(geohash.Neighbors(cell), cell) {
			for _, other := range buckets[neighbor] {
				if other.group == pt.group || uf.find(other.group) == uf.find(pt.group) {
					continue
				}
				if Haversine(pt.lat, pt.lng, other.lat, other.lng) < c.radius {
					uf.union(pt.group, other.group)
				}
			}
		}
	}
}

func (c *Clusterer) summarize(key string, members []*models.Property) BuildingCluster {
	sortByOccupancy(members)

	bc := BuildingCluster{
		Key:         key,
		Address:     address.GroupingKey(members[0].Address),
		Members:     members,
		MemberCount: len(members),
	}

	names := make(map[string]int)
	var occSum, latSum, lngSum float64
	var located int
	for _, m := range members {
		occSum += m.OccupancyRate()
		names[address.BuildingName(m.Address)]++
		if m.HasCoordinates() {
			latSum += *m.Latitude
			lngSum += *m.Longitude
			located++
		}
	}
	bc.AverageOccupancy = occSum / float64(len(members))
	bc.BuildingName = mostFrequent(names)
	if located > 0 {
		lat, lng := latSum/float64(located), lngSum/float64(located)
		bc.Latitude, bc.Longitude = &lat, &lng
	}

	bc.RepresentativeRooms = RepresentativeRooms(members)
	var tier []*models.Property
	for _, m := range members {
		if m.RoomCount() == bc.RepresentativeRooms {
			tier = append(tier, m)
		}
	}
	bc.TierMemberCount = len(tier)

	// money sums stay exact; only the averages are rounded to float
	var price, maint, fee, profit decimal.Decimal
	var occ float64
	for _, m := range tier {
		if m.Pricing != nil {
			price = price.Add(decimal.NewFromInt(m.Pricing.WeeklyPrice))
			maint = maint.Add(decimal.NewFromInt(m.Pricing.WeeklyMaintenance))
			fee = fee.Add(decimal.NewFromInt(m.Pricing.CleaningFee))
			bc.PricedMemberCount++
		}
		occ += m.OccupancyRate()
		profit = profit.Add(c.projector.Project(m).Profit)
	}
	n := decimal.NewFromInt(int64(len(tier)))
	if bc.PricedMemberCount > 0 {
		priced := decimal.NewFromInt(int64(bc.PricedMemberCount))
		bc.AvgWeeklyPrice = price.Div(priced).InexactFloat64()
		bc.AvgWeeklyMaintenance = maint.Div(priced).InexactFloat64()
		bc.AvgCleaningFee = fee.Div(priced).InexactFloat64()
	}
	bc.AvgTierOccupancy = occ / float64(len(tier))
	bc.AvgMonthlyProfit = profit.Div(n).InexactFloat64()

	return bc
}

// RepresentativeRooms picks the room tier a cluster is priced by: one-room
// units if any, else two-room units, else the smallest room count present.
func RepresentativeRooms(members []*models.Property) int {
	has := make(map[int]bool)
	smallest := -1
	for _, m := range members {
		rc := m.RoomCount()
		has[rc] = true
		if smallest == -1 || rc < smallest {
			smallest = rc
		}
	}
	switch {
	case has[1]:
		return 1
	case has[2]:
		return 2
	default:
		return smallest
	}
}

func sortByOccupancy(ps []*models.Property) {
	sort.SliceStable(ps, func(i, j int) bool {
		oi, oj := ps[i].OccupancyRate(), ps[j].OccupancyRate()
		if oi != oj {
			return oi > oj
		}
		return ps[i].ExternalID < ps[j].ExternalID
	})
}

func mostFrequent(counts map[string]int) string {
	best, bestN := "", 0
	for name, n := range counts {
		if n > bestN || (n == bestN && name < best) {
			best, bestN = name, n
		}
	}
	return best
}

// precisionFor returns the longest geohash whose cells are still at least
// radius meters on their short side at latitude lat. Cell width shrinks with
// cos(lat), so high latitudes get coarser cells.
func precisionFor(radius, lat float64) uint {
	metersPerDegree := earthRadiusMeters * math.Pi / 180
	shrink := math.Cos(math.Min(math.Abs(lat), 90) * math.Pi / 180)
	for p := uint(9); p >= 1; p-- {
		bits := 5 * p
		lngBits, latBits := (bits+1)/2, bits/2
		width := 360 / float64(uint64(1)<<lngBits) * metersPerDegree * shrink
		height := 180 / float64(uint64(1)<<latBits) * metersPerDegree
		if math.Min(width, height) >= radius {
			return p
		}
	}
	return 1
}
