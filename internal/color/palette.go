package color

import "strings"

// Multicolor is returned when a label cannot be mapped to a single palette entry.
const Multicolor = "多色"

// Entry pairs an English palette name with its canonical Chinese label.
type Entry struct {
	English   string
	Canonical string
}

// Palette is the closed set of canonical colors.
var Palette = []Entry{
	{"Black", "黑色"}, {"White", "白色"}, {"Beige", "米色"}, {"Khaki", "卡其色"},
	{"Camel", "驼色"}, {"Apricot", "杏色"}, {"Dark Grey", "深灰色"}, {"Grey", "灰色"},
	{"Light Grey", "浅灰色"}, {"Silver", "银色"}, {"Burgundy", "酒红色"}, {"Maroon", "栗色"},
	{"Redwood", "红木色"}, {"Red", "红色"}, {"Rose Red", "玫瑰红色"}, {"Rusty Rose", "枯玫瑰色"},
	{"Coral Orange", "珊瑚橙色"}, {"Orange", "橙色"}, {"Burnt Orange", "燃橙色"}, {"Mustard Yellow", "芥末黄"},
	{"Yellow", "黄色"}, {"Champagne", "香槟色"}, {"Gold", "金色"}, {"Mint Green", "薄荷绿"},
	{"Green", "绿色"}, {"Dark Green", "墨绿色"}, {"Olive Green", "橄榄绿"}, {"Army Green", "军绿色"},
	{"Lime Green", "青柠色"}, {"Navy Blue", "藏蓝色"}, {"Royal Blue", "宝蓝色"}, {"Blue", "蓝色"},
	{"Dusty Blue", "雾霾蓝"}, {"Baby Blue", "淡蓝色"}, {"Mint Blue", "薄荷蓝"}, {"Cadet Blue", "青碧色"},
	{"Teal Blue", "水鸭蓝"}, {"Purple", "紫色"}, {"Red Violet", "中紫红色"}, {"Violet Purple", "紫罗兰色"},
	{"Lilac Purple", "紫丁香色"}, {"Mauve Purple", "淡紫色"}, {"Dusty Purple", "浅灰紫"}, {"Hot Pink", "玫红色"},
	{"Pink", "粉色"}, {"Watermelon Pink", "西瓜粉色"}, {"Coral Pink", "珊瑚粉"}, {"Dusty Pink", "藕粉色"},
	{"Baby Pink", "浅粉色"}, {"Chocolate Brown", "巧克力棕"}, {"Bronze", "古铜色"}, {"Rust Brown", "锈棕色"},
	{"Coffee Brown", "咖啡棕"}, {"Mocha Brown", "摩卡棕"}, {"Brown", "棕色"}, {"Ginger", "姜色"},
	{"Multicolor", Multicolor}, {"Black and White", "黑白色"}, {"Blue and White", "蓝白色"}, {"Red and White", "红白色"},
}

var (
	byName    = make(map[string]string, 2*len(Palette))
	canonical = make(map[string]struct{}, len(Palette))
)

func init() {
	for _, e := range Palette {
		byName[strings.ToLower(e.English)] = e.Canonical
		byName[e.Canonical] = e.Canonical
		canonical[e.Canonical] = struct{}{}
	}
}

// Lookup matches an English or canonical name, ignoring case and surrounding space.
func Lookup(label string) (string, bool) {
	c, ok := byName[strings.ToLower(strings.TrimSpace(label))]
	return c, ok
}

// IsCanonical reports whether c is one of the palette's canonical labels.
func IsCanonical(c string) bool {
	_, ok := canonical[c]
	return ok
}

// CanonicalNames lists the canonical labels in palette order.
func CanonicalNames() []string {
	names := make([]string, len(Palette))
	for i, e := range Palette {
		names[i] = e.Canonical
	}
	return names
}
