// Package cmn provides common low-level types, constants, and codecs shared
// by the resource-store core.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

// Script kinds registered with the Script Registry (scripts package).
const (
	ScriptGet            = "GET"
	ScriptStorageExpand  = "STORAGE_EXPAND"
	ScriptPut            = "PUT"
	ScriptDelete         = "DELETE"
	ScriptCleanup        = "CLEANUP"
)

// Lock modes, exact wire strings compared by the Lua scripts.
const (
	LockSilent   = "silent"
	LockReject   = "reject"
	LockOverride = "override"
)

// Resource kinds returned by the GET/STORAGE_EXPAND scripts.
const (
	TypeResource   = "TYPE_RESOURCE"
	TypeCollection = "TYPE_COLLECTION"
)

// Terminal string outcomes shared across scripts.
const (
	OutNotFound   = "notFound"
	OutNotModified = "notModified"
	OutNotEmpty   = "notEmpty"
)

const (
	// MaxExpireMillis is the sentinel expire-at value meaning "never expires".
	MaxExpireMillis = "9999999999999"
	// CleanupBulkSize bounds a single CLEANUP script invocation.
	CleanupBulkSize = 200
	// ScriptRetryBound is the number of NOSCRIPT-triggered reloads tolerated
	// before an operation surfaces a fatal error.
	ScriptRetryBound = 10
)
