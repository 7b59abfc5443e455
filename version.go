package softbus

// Version is the release of the softbus module.
const Version = "0.3.0"
