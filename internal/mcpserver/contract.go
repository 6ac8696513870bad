package mcpserver

// URIFormatContract describes the otpauth provisioning URI format accepted
// by parse_otp_uri and produced for every stored account.
const URIFormatContract = `# LightAuth Provisioning URI Format

Authenticator QR codes carry a single otpauth URI.

## Structure

` + "```" + `
otpauth://totp/<Issuer>:<Account name>?secret=<BASE32>&issuer=<Issuer>
` + "```" + `

## Rules

1. **Scheme** is ` + "`" + `otpauth` + "`" + `. Anything else is not a provisioning URI.
2. **Type** (the host) is ` + "`" + `totp` + "`" + ` or ` + "`" + `hotp` + "`" + `. LightAuth generates time-based codes only.
3. **Label** is the path. A ` + "`" + `Issuer:` + "`" + ` prefix is split off as the issuer; the rest is the account name.
   Labels are percent-encoded.
4. **secret** is required: base32 (A-Z, 2-7), spaces and case are ignored on entry.
5. **issuer** query parameter, when present, wins over the label prefix.
6. Codes are 6 digits, HMAC-SHA1, 30 second period. ` + "`" + `digits` + "`" + `, ` + "`" + `algorithm` + "`" + ` and ` + "`" + `period` + "`" + `
   parameters are ignored.

## Example

` + "```" + `
otpauth://totp/GitHub:alice%40example.com?secret=JBSWY3DPEHPK3PXP&issuer=GitHub
` + "```" + `

parses to name ` + "`" + `alice@example.com` + "`" + `, issuer ` + "`" + `GitHub` + "`" + `, secret ` + "`" + `JBSWY3DPEHPK3PXP` + "`" + `.
`
