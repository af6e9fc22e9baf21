package config

// ResetCache clears cached configurations between tests.
var ResetCache = resetCache
