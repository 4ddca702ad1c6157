// Package structured implements the self describing text encoding of
// registered types:
//
//	Point{x:10;y:20;}
//	Player{name:"ann";pos:Point{x:1;y:2;};hand:[1,2,3];scores:{"a":1;};}
//
// Decoding looks up the type name in the schema registry and reads name/value
// pairs until the closing brace. Fields the local type does not declare are
// skipped, so newer producers can add fields without breaking older
// consumers. Unknown type names and grammar violations are errors
// (*schema.UnknownTypeError and *MalformedStreamError). The encoder fails
// with a *CyclicReferenceError if an object is reachable from itself.
//
// MarshalSelected and UnmarshalInto are the building blocks of delta
// synchronization: the dirty package selects changed fields only and merges
// partial streams into existing objects.
package structured
