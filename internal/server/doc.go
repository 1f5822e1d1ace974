// Package server hosts the Fiber HTTP service and its request middleware chain.
// It builds the app with recover and request-id middlewares, routes every
// non-diagnostics path to a single cache Handler, and resolves request paths
// to files under the configured document root. Diagnostics under /-/ are left
// to the routes package so operators can inspect worker state without going
// through the cache.
package server
