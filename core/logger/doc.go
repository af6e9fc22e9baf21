// Package logger provides slog attribute helpers shared by the client packages.
//
// Helpers are nil-safe: an empty error, collection or id yields an empty
// slog.Attr which slog silently drops.
//
//	log.WarnContext(ctx, "lazy flush failed",
//		logger.Collection("events"),
//		logger.Count("documents", len(docs)),
//		logger.Error(err),
//	)
package logger
