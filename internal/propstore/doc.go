// Package propstore persists user property values in a Badger database so a
// graph can be brought back to the state it was in when it was saved.
//
// Only USER properties are stored. Edge properties follow from them once the
// graph resolves, so storing them would only invite conflicts on restore.
package propstore
