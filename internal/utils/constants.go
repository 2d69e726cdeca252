package utils

const (
	ContentTypeHeader        = "Content-Type"
	ContentDispositionHeader = "Content-Disposition"
	CacheControlHeader       = "Cache-Control"
	AcceptHeader             = "Accept"
	LocationHeader           = "Location"
	SHA256Header             = "X-SHA256"
)

const (
	JSONContentType        = "application/json"
	OctetStreamContentType = "application/octet-stream"
	VSIXContentType        = "application/vsix"
)

// ImmutableCacheControl suits mirrored files: their names carry the version.
const ImmutableCacheControl = "public, max-age=31536000, immutable"

const (
	UserAgent      = "vsmirror/1.0"
	HTTPAPIVersion = "application/json;api-version=3.0-preview.1"
)

const (
	MaxPageSize     = 100
	DefaultPage     = 1
	DefaultPageSize = 50
)

const (
	PackageJSONPath  = "extension/package.json"
	VSIXManifestPath = "extension.vsixmanifest"
	VSIXExtension    = ".vsix"
	PartialSuffix    = ".part"
)

const (
	CORSAllowOrigin  = "*"
	CORSAllowMethods = "OPTIONS,GET,POST"
	CORSAllowHeaders = "Content-Type,Authorization,Accept,X-Requested-With,X-Market-Client-Id,X-Market-User-Id,X-Client-Commit,X-Client-Name,X-Client-Version,X-Machine-Id,VSCode-SessionId,accept"
	CORSMaxAge       = "86400"
)
