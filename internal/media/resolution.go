package media

// Source resolution bits as used on the command channel.
const (
	Resolution1920x1080P30 uint32 = 1 << 0
	Resolution1280x720P30  uint32 = 1 << 1
	Resolution960x540P30   uint32 = 1 << 2
	Resolution864x480P30   uint32 = 1 << 3
	Resolution720x480P60   uint32 = 1 << 4
	Resolution640x480P60   uint32 = 1 << 5
	Resolution640x360P30   uint32 = 1 << 6
	ResolutionMax          uint32 = 128
)

// NativeFamily is the WFD native resolution table.
type NativeFamily int

const (
	NativeCEA NativeFamily = iota + 1
	NativeVESA
	NativeHH
)

func (f NativeFamily) String() string {
	switch f {
	case NativeCEA:
		return "CEA"
	case NativeVESA:
		return "VESA"
	case NativeHH:
		return "HH"
	}
	return "unknown"
}

// CEA and HH capability bits advertised in wfd_video_formats.
const (
	CEA640x480P60   uint32 = 1 << 0
	CEA720x480P60   uint32 = 1 << 1
	CEA1280x720P30  uint32 = 1 << 5
	CEA1920x1080P30 uint32 = 1 << 7

	HH864x480P30 uint32 = 1 << 4
	HH640x360P30 uint32 = 1 << 6
	HH960x540P30 uint32 = 1 << 8
)

type WFDResolution struct {
	Native NativeFamily
	CEA    uint32
	HH     uint32
}

var resolutionTable = []struct {
	source uint32
	family NativeFamily
	bit    uint32
}{
	{Resolution1920x1080P30, NativeCEA, CEA1920x1080P30},
	{Resolution1280x720P30, NativeCEA, CEA1280x720P30},
	{Resolution720x480P60, NativeCEA, CEA720x480P60},
	{Resolution640x480P60, NativeCEA, CEA640x480P60},
	{Resolution960x540P30, NativeHH, HH960x540P30},
	{Resolution864x480P30, NativeHH, HH864x480P30},
	{Resolution640x360P30, NativeHH, HH640x360P30},
}

// TranslateResolution maps a source bitmask onto WFD capability masks. The
// native family is the one of the last matching entry, so any HH bit wins.
// A zero mask falls back to CEA with the configured default support mask.
func TranslateResolution(mask uint32, defaultCEA uint64) WFDResolution {
	if mask == 0 {
		return WFDResolution{Native: NativeCEA, CEA: uint32(defaultCEA)}
	}
	var r WFDResolution
	for _, entry := range resolutionTable {
		if mask&entry.source == 0 {
			continue
		}
		r.Native = entry.family
		if entry.family == NativeHH {
			r.HH |= entry.bit
		} else {
			r.CEA |= entry.bit
		}
	}
	return r
}

// ValidResolution reports whether mask only uses known source bits.
func ValidResolution(mask uint32) bool {
	return mask < ResolutionMax
}
