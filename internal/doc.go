// internal is internal packages for Outpost.
//
// The probe package measures services, the incident package decides what the measurements mean,
// and the buffer package keeps pings until they are old enough to publish.
// The cycle package ties them together with the backend client in lib-outpost.
//
// The outposterr package and the testutil package are used by every other package.
package internal
