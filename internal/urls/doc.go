// Package urls provides centralized constants for the documentation URLs
// quoted in troubleshooting output.
//
// Usage:
//
//	import "github.com/muurk/shellyscan/internal/urls"
//
//	fmt.Printf("For more information, see: %s\n", urls.Authentication)
package urls
