package services

// Shared stylesheet for every notification email
const emailStyle = `
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
        .header.awaiting { background-color: #FFA000; }
        .header.approved { background-color: #4CAF50; }
        .header.rejected { background-color: #f44336; }
        .header.cancelled { background-color: #757575; }
        .content { background-color: #f9f9f9; padding: 30px; border: 1px solid #ddd; border-top: none; }
        .info-row { margin: 10px 0; padding: 10px; background-color: white; border-left: 3px solid #4CAF50; }
        .label { font-weight: bold; color: #555; }
        .value { color: #333; }
        .button { display: inline-block; padding: 12px 30px; margin: 20px 10px 10px 0; background-color: #4CAF50; color: white; text-decoration: none; border-radius: 5px; }
        .footer { text-align: center; padding: 20px; color: #777; font-size: 12px; }
    </style>`

// Email template for a request waiting on a role
const awaitingApprovalEmailTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">` + emailStyle + `
</head>
<body>
    <div class="container">
        <div class="header awaiting">
            <h1>Purchase Request Awaiting Action</h1>
        </div>
        <div class="content">
            <p>A purchase request is waiting for <strong>{{.AwaitingRole}}</strong>.</p>

            <div class="info-row">
                <span class="label">Title:</span>
                <span class="value">{{.Title}}</span>
            </div>

            <div class="info-row">
                <span class="label">Amount:</span>
                <span class="value">{{.Amount}}</span>
            </div>

            {{if .PONumber}}
            <div class="info-row">
                <span class="label">Purchase Order:</span>
                <span class="value">{{.PONumber}}</span>
            </div>
            {{end}}

            <a href="{{.RequestURL}}" class="button">Review Request</a>
        </div>
        <div class="footer">
            <p>Procurement Workflows</p>
            <p>Updated at: {{.Timestamp}}</p>
        </div>
    </div>
</body>
</html>
`

// Email template for an approved request
const requestApprovedEmailTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">` + emailStyle + `
</head>
<body>
    <div class="container">
        <div class="header approved">
            <h1>Purchase Request Approved</h1>
        </div>
        <div class="content">
            <p>Your purchase request has been fully approved.</p>

            <div class="info-row">
                <span class="label">Title:</span>
                <span class="value">{{.Title}}</span>
            </div>

            <div class="info-row">
                <span class="label">Amount:</span>
                <span class="value">{{.Amount}}</span>
            </div>

            {{if .PONumber}}
            <div class="info-row">
                <span class="label">Purchase Order:</span>
                <span class="value">{{.PONumber}}</span>
            </div>
            {{end}}

            {{if .Comments}}
            <div class="info-row">
                <span class="label">Comments:</span>
                <span class="value">{{.Comments}}</span>
            </div>
            {{end}}

            <a href="{{.RequestURL}}" class="button">View Request</a>
        </div>
        <div class="footer">
            <p>Procurement Workflows</p>
            <p>Timestamp: {{.Timestamp}}</p>
        </div>
    </div>
</body>
</html>
`

// Email template for a rejected request
const requestRejectedEmailTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">` + emailStyle + `
</head>
<body>
    <div class="container">
        <div class="header rejected">
            <h1>Purchase Request Rejected</h1>
        </div>
        <div class="content">
            <p>Your purchase request was rejected by {{.ActorRole}}{{if .Level}} at {{.Level}}{{end}}.</p>

            <div class="info-row">
                <span class="label">Title:</span>
                <span class="value">{{.Title}}</span>
            </div>

            <div class="info-row">
                <span class="label">Amount:</span>
                <span class="value">{{.Amount}}</span>
            </div>

            <div class="info-row">
                <span class="label">Comments:</span>
                <span class="value">{{.Comments}}</span>
            </div>

            <a href="{{.RequestURL}}" class="button">View Request</a>
        </div>
        <div class="footer">
            <p>Procurement Workflows</p>
            <p>Timestamp: {{.Timestamp}}</p>
        </div>
    </div>
</body>
</html>
`

// Email template for a cancelled request
const requestCancelledEmailTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">` + emailStyle + `
</head>
<body>
    <div class="container">
        <div class="header cancelled">
            <h1>Purchase Request Cancelled</h1>
        </div>
        <div class="content">
            <p>Your purchase request was cancelled by {{.ActorRole}}.</p>

            <div class="info-row">
                <span class="label">Title:</span>
                <span class="value">{{.Title}}</span>
            </div>

            {{if .PONumber}}
            <div class="info-row">
                <span class="label">Purchase Order:</span>
                <span class="value">{{.PONumber}}</span>
            </div>
            {{end}}

            <div class="info-row">
                <span class="label">Reason:</span>
                <span class="value">{{.Comments}}</span>
            </div>

            <a href="{{.RequestURL}}" class="button">View Request</a>
        </div>
        <div class="footer">
            <p>Procurement Workflows</p>
            <p>Timestamp: {{.Timestamp}}</p>
        </div>
    </div>
</body>
</html>
`
