package urls

// Device API documentation published by Shelly

// Gen2API is the API reference for Gen2 and later devices, whose RPC
// interface the status command uses.
const Gen2API = "https://shelly-api-docs.shelly.cloud/gen2/"

// RPCProtocol describes the JSON-RPC frames used over HTTP and WebSocket.
const RPCProtocol = "https://shelly-api-docs.shelly.cloud/gen2/General/RPCProtocol"

// Authentication explains how password protected devices authenticate
// requests.
const Authentication = "https://shelly-api-docs.shelly.cloud/gen2/General/Authentication"

// Gen1API is the API reference for Gen1 devices. They answer /shelly but
// have no RPC interface.
const Gen1API = "https://shelly-api-docs.shelly.cloud/gen1/"
