// Package profile implements player profiles and field-level visibility.
//
// Each profile attribute is exposed per viewer role through explicit
// grants; everything not granted is omitted from reads. Profile updates
// replace the attributes and the complete grant set in one transaction.
package profile
