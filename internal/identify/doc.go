// Package identify decides whether a probe reply came from a Shelly device.
//
// A reply matches when it is an HTTP 200 whose body is a JSON object with a
// string "id" that starts with the family prefix ("shelly" by default). Every
// other reply, including malformed JSON, is a non-match with a Verdict that
// says why. Classification never returns an error.
package identify
