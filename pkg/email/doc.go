// Package email provides outbound email delivery behind a narrow EmailSender
// interface, with a Postmark-backed production client and a filesystem-backed
// development sender.
//
// The notification dispatcher is the only consumer; lifecycle emails are
// best-effort and callers never treat a delivery failure as fatal.
package email
