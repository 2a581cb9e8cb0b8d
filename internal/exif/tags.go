package exif

// TIFF field types.
const (
	typeByte      uint16 = 1
	typeASCII     uint16 = 2
	typeShort     uint16 = 3
	typeLong      uint16 = 4
	typeRational  uint16 = 5
	typeSByte     uint16 = 6
	typeUndefined uint16 = 7
	typeSShort    uint16 = 8
	typeSLong     uint16 = 9
	typeSRational uint16 = 10
	typeFloat     uint16 = 11
	typeDouble    uint16 = 12
)

// Tags this package reads or writes.
const (
	tagImageDescription   uint16 = 0x010E
	tagStripOffsets       uint16 = 0x0111
	tagDateTime           uint16 = 0x0132
	tagSubIFDs            uint16 = 0x014A
	tagThumbnailOffset    uint16 = 0x0201
	tagThumbnailLength    uint16 = 0x0202
	tagExifIFD            uint16 = 0x8769
	tagGPSIFD             uint16 = 0x8825
	tagExifVersion        uint16 = 0x9000
	tagDateTimeOriginal   uint16 = 0x9003
	tagOffsetTime         uint16 = 0x9010
	tagOffsetTimeOriginal uint16 = 0x9011
	tagInteropIFD         uint16 = 0xA005

	tagGPSVersionID    uint16 = 0x0000
	tagGPSLatitudeRef  uint16 = 0x0001
	tagGPSLatitude     uint16 = 0x0002
	tagGPSLongitudeRef uint16 = 0x0003
	tagGPSLongitude    uint16 = 0x0004
	tagGPSAltitudeRef  uint16 = 0x0005
	tagGPSAltitude     uint16 = 0x0006
)

const dateTimeLayout = "2006:01:02 15:04:05"

func typeSize(typ uint16) int {
	switch typ {
	case typeByte, typeASCII, typeSByte, typeUndefined:
		return 1
	case typeShort, typeSShort:
		return 2
	case typeLong, typeSLong, typeFloat:
		return 4
	case typeRational, typeSRational, typeDouble:
		return 8
	default:
		return 0
	}
}
