// Command newsfeed runs the IT newsfeed: source polling, deduplicated
// ingestion, background enrichment and the ranked retrieval API.
package main

func main() {
	Execute()
}
