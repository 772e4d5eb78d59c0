package tlv

import (
	"encoding/binary"
	"fmt"
)

// TagControl is the upper three bits of a control octet.
type TagControl uint8

const (
	TagControlAnonymous        TagControl = 0
	TagControlContext          TagControl = 1
	TagControlCommonProfile2   TagControl = 2
	TagControlCommonProfile4   TagControl = 3
	TagControlImplicitProfile2 TagControl = 4
	TagControlImplicitProfile4 TagControl = 5
	TagControlFullyQualified6  TagControl = 6
	TagControlFullyQualified8  TagControl = 7
)

var tagControlSizes = [8]int{0, 1, 2, 4, 2, 4, 6, 8}

// Size returns the number of tag octets that follow the control octet.
func (tc TagControl) Size() int {
	return tagControlSizes[tc&0x07]
}

// Tag identifies an element within its container.
type Tag struct {
	control TagControl
	vendor  uint16
	profile uint16
	number  uint32
}

// Anonymous returns the tag used for array members and top-level elements.
func Anonymous() Tag {
	return Tag{}
}

// ContextTag returns a context-specific tag, valid inside structures and lists.
func ContextTag(n uint8) Tag {
	return Tag{control: TagControlContext, number: uint32(n)}
}

// CommonProfileTag returns a tag in the common profile.
func CommonProfileTag(n uint32) Tag {
	if n > 0xFFFF {
		return Tag{control: TagControlCommonProfile4, number: n}
	}
	return Tag{control: TagControlCommonProfile2, number: n}
}

// ImplicitProfileTag returns a tag in the implicit profile.
func ImplicitProfileTag(n uint32) Tag {
	if n > 0xFFFF {
		return Tag{control: TagControlImplicitProfile4, number: n}
	}
	return Tag{control: TagControlImplicitProfile2, number: n}
}

// FullyQualifiedTag returns a vendor/profile qualified tag.
func FullyQualifiedTag(vendor, profile uint16, n uint32) Tag {
	if n > 0xFFFF {
		return Tag{control: TagControlFullyQualified8, vendor: vendor, profile: profile, number: n}
	}
	return Tag{control: TagControlFullyQualified6, vendor: vendor, profile: profile, number: n}
}

func (t Tag) Control() TagControl { return t.control }
func (t Tag) Number() uint32      { return t.number }
func (t Tag) VendorID() uint16    { return t.vendor }
func (t Tag) Profile() uint16     { return t.profile }
func (t Tag) IsAnonymous() bool   { return t.control == TagControlAnonymous }
func (t Tag) IsContext() bool     { return t.control == TagControlContext }

// IsContextNumber reports whether t is the context tag n.
func (t Tag) IsContextNumber(n uint8) bool {
	return t.control == TagControlContext && t.number == uint32(n)
}

func (t Tag) String() string {
	switch t.control {
	case TagControlAnonymous:
		return "anon"
	case TagControlContext:
		return fmt.Sprintf("ctx:%d", t.number)
	case TagControlFullyQualified6, TagControlFullyQualified8:
		return fmt.Sprintf("fq:%04x:%04x:%d", t.vendor, t.profile, t.number)
	default:
		return fmt.Sprintf("profile:%d", t.number)
	}
}

// appendTag appends the tag octets (without control octet) to dst.
func appendTag(dst []byte, t Tag) []byte {
	switch t.control {
	case TagControlContext:
		dst = append(dst, byte(t.number))
	case TagControlCommonProfile2, TagControlImplicitProfile2:
		dst = binary.LittleEndian.AppendUint16(dst, uint16(t.number))
	case TagControlCommonProfile4, TagControlImplicitProfile4:
		dst = binary.LittleEndian.AppendUint32(dst, t.number)
	case TagControlFullyQualified6:
		dst = binary.LittleEndian.AppendUint16(dst, t.vendor)
		dst = binary.LittleEndian.AppendUint16(dst, t.profile)
		dst = binary.LittleEndian.AppendUint16(dst, uint16(t.number))
	case TagControlFullyQualified8:
		dst = binary.LittleEndian.AppendUint16(dst, t.vendor)
		dst = binary.LittleEndian.AppendUint16(dst, t.profile)
		dst = binary.LittleEndian.AppendUint32(dst, t.number)
	}
	return dst
}

// parseTag decodes tag octets of the given form from b.
// b must hold at least tc.Size() bytes.
func parseTag(tc TagControl, b []byte) Tag {
	t := Tag{control: tc}
	switch tc {
	case TagControlContext:
		t.number = uint32(b[0])
	case TagControlCommonProfile2, TagControlImplicitProfile2:
		t.number = uint32(binary.LittleEndian.Uint16(b))
	case TagControlCommonProfile4, TagControlImplicitProfile4:
		t.number = binary.LittleEndian.Uint32(b)
	case TagControlFullyQualified6:
		t.vendor = binary.LittleEndian.Uint16(b)
		t.profile = binary.LittleEndian.Uint16(b[2:])
		t.number = uint32(binary.LittleEndian.Uint16(b[4:]))
	case TagControlFullyQualified8:
		t.vendor = binary.LittleEndian.Uint16(b)
		t.profile = binary.LittleEndian.Uint16(b[2:])
		t.number = binary.LittleEndian.Uint32(b[4:])
	}
	return t
}
