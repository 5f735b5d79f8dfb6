// Package robots provides the pluggable crawl-policy check point.
//
// The crawl engine consults a Policy before every fetch. The default policy
// allows everything; the Agent implementation honors robots.txt with
// per-host caching. Anything beyond this single check point (crawl-delay
// directives, sitemap discovery) is out of scope.
package robots
