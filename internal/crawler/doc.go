// Package crawler defines the domain types shared by the image crawl
// subsystem: search limits, candidates, run statistics, and the interfaces
// implemented by source adapters, the browser session, and byte fetchers.
package crawler
