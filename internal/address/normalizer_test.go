package address

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestGroupingKey(t *testing.T) {
	tests := []struct {
		name string
		addr string
		want string
	}{
		{
			name: "unit number",
			addr: "서울 강남구 역삼동 123-4 101동 501호",
			want: "서울 강남구 역삼동 123-4 101동",
		},
		{
			name: "floor and unit",
			addr: "서울 마포구 서교동 12-3 3층 302호",
			want: "서울 마포구 서교동 12-3",
		},
		{
			name: "basement floor",
			addr: "서울 관악구 신림동 1500 지하1층",
			want: "서울 관악구 신림동 1500",
		},
		{
			name: "basement with letter",
			addr: "서울 관악구 신림동 1500 B1층",
			want: "서울 관악구 신림동 1500",
		},
		{
			name: "household count",
			addr: "서울 송파구 잠실동 40 24세대",
			want: "서울 송파구 잠실동 40",
		},
		{
			name: "letter prefixed unit code",
			addr: "서울 용산구 한남동 55 A-302",
			want: "서울 용산구 한남동 55",
		},
		{
			name: "english floor marker",
			addr: "서울 중구 명동 2가 3F",
			want: "서울 중구 명동 2가",
		},
		{
			name: "collapses whitespace",
			addr: "  서울   종로구\t혜화동  ",
			want: "서울 종로구 혜화동",
		},
		{
			name: "trailing separator",
			addr: "서울 강남구 역삼동 123-4, 501호",
			want: "서울 강남구 역삼동 123-4",
		},
		{
			name: "empty",
			addr: "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GroupingKey(tt.addr))
		})
	}
}

func TestGroupingKey_SameBuildingDifferentUnits(t *testing.T) {
	a := GroupingKey("서울 강남구 역삼동 123-4 101동 501호")
	b := GroupingKey("서울 강남구 역삼동 123-4 101동 302호")
	assert.Equal(t, a, b)
	assert.NotEmpty(t, a)
}

func TestBuildingName(t *testing.T) {
	tests := []struct {
		name string
		addr string
		want string
	}{
		{
			name: "brand with wing designator",
			addr: "서울 서초구 반포동 래미안퍼스티지 101동 1203호",
			want: "래미안퍼스티지",
		},
		{
			name: "brand with phase qualifier",
			addr: "서울 강동구 고덕동 래미안 2차 302호",
			want: "래미안 2차",
		},
		{
			name: "generic officetel",
			addr: "서울 강남구 역삼동 123-4 역삼오피스텔 501호",
			want: "역삼오피스텔",
		},
		{
			name: "wing number",
			addr: "서울 강남구 역삼동 123-4 101동 501호",
			want: "101동",
		},
		{
			name: "administrative dong number is not a wing",
			addr: "서울 강남구 역삼1동 678-9 3층",
			want: "678-9",
		},
		{
			name: "lot number",
			addr: "서울 마포구 서교동 12-3 3층",
			want: "12-3",
		},
		{
			name: "falls back to address",
			addr: "서울 마포구 서교동",
			want: "서울 마포구 서교동",
		},
		{
			name: "empty",
			addr: "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildingName(tt.addr))
		})
	}
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"서울", "강남구", "역삼동"}, Tokens("서울 강남구 역삼동 123-4", 3))
	assert.Equal(t, []string{"서울"}, Tokens("서울", 3))
	assert.Empty(t, Tokens("", 3))
}

var fragments = []string{
	"서울", "강남구", "역삼동", "123-4", "101동", "501호", "3층", "지하1층",
	"B1층", "A-302", "24세대", "3F", "래미안", "오피스텔", ",", " ", "-", "호", "층",
}

func addressFragments() gopter.Gen {
	return gen.SliceOf(gen.IntRange(0, len(fragments)-1)).Map(func(idx []int) string {
		s := make([]string, len(idx))
		for i, n := range idx {
			s[i] = fragments[n]
		}
		return strings.Join(s, " ")
	})
}

func TestGroupingKey_Idempotent(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("grouping key is idempotent on address-like input", prop.ForAll(
		func(addr string) bool {
			key := GroupingKey(addr)
			return GroupingKey(key) == key
		},
		addressFragments(),
	))

	properties.Property("grouping key is idempotent on arbitrary input", prop.ForAll(
		func(addr string) bool {
			key := GroupingKey(addr)
			return GroupingKey(key) == key
		},
		gen.AnyString(),
	))

	properties.Property("building name never fails on non-empty input", prop.ForAll(
		func(addr string) bool {
			if strings.TrimSpace(addr) == "" {
				return true
			}
			return BuildingName(addr) != ""
		},
		addressFragments(),
	))

	properties.TestingRun(t)
}
