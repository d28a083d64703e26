package sharepoint_tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/graphbridge/graphbridge/internal/server"
	"github.com/graphbridge/graphbridge/internal/tools/batch"
	"github.com/graphbridge/graphbridge/internal/tools/common"
)

// registerFileTools registers drive item browsing and transfer tools
func registerFileTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	// List files tool
	listFilesTool := mcp.NewTool("sharepoint_list_files",
		mcp.WithDescription("List the files and folders in a drive or folder"),
		mcp.WithString("account",
			mcp.Description("Account ID (default: the first signed-in account)"),
		),
		mcp.WithString("driveId",
			mcp.Required(),
			mcp.Description("The drive ID (see sharepoint_list_drives)"),
		),
		mcp.WithString("folderId",
			mcp.Description("Folder item ID to list; omit for the drive root"),
		),
	)

	s.AddTool(listFilesTool, common.InstrumentedToolHandlerWithService(
		"sharepoint_list_files", "drive", "list", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListFiles(ctx, request, sc)
		}))

	// Get file by path tool
	getFileTool := mcp.NewTool("sharepoint_get_file",
		mcp.WithDescription("Look up a file or folder by its path relative to the drive root, e.g. 'Reports/2026/summary.xlsx'"),
		mcp.WithString("account",
			mcp.Description("Account ID (default: the first signed-in account)"),
		),
		mcp.WithString("driveId",
			mcp.Required(),
			mcp.Description("The drive ID"),
		),
		mcp.WithString("filePath",
			mcp.Required(),
			mcp.Description("The path relative to the drive root"),
		),
	)

	s.AddTool(getFileTool, common.InstrumentedToolHandlerWithService(
		"sharepoint_get_file", "drive", "get", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetFile(ctx, request, sc)
		}))

	// Download file tool
	downloadFileTool := mcp.NewTool("sharepoint_download_file",
		mcp.WithDescription("Download a file's content. Text files are returned as text, binary files base64-encoded."),
		mcp.WithString("account",
			mcp.Description("Account ID (default: the first signed-in account)"),
		),
		mcp.WithString("driveId",
			mcp.Required(),
			mcp.Description("The drive ID"),
		),
		mcp.WithString("fileId",
			mcp.Required(),
			mcp.Description("The file item ID (see sharepoint_list_files)"),
		),
	)

	s.AddTool(downloadFileTool, common.InstrumentedToolHandlerWithService(
		"sharepoint_download_file", "drive", "download", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleDownloadFile(ctx, request, sc)
		}))

	// Upload file tool (write operation)
	uploadFileTool := mcp.NewTool("sharepoint_upload_file",
		mcp.WithDescription("Upload a file into a drive folder, replacing any existing file of the same name. Files up to 4 MB."),
		mcp.WithString("account",
			mcp.Description("Account ID (default: the first signed-in account)"),
		),
		mcp.WithString("driveId",
			mcp.Required(),
			mcp.Description("The drive ID"),
		),
		mcp.WithString("folderId",
			mcp.Required(),
			mcp.Description("The destination folder item ID (use 'root' for the drive root)"),
		),
		mcp.WithString("fileName",
			mcp.Required(),
			mcp.Description("The name of the file to create"),
		),
		mcp.WithString("content",
			mcp.Description("The file content as text (for text files)"),
		),
		mcp.WithString("contentBase64",
			mcp.Description("The file content base64-encoded (for binary files); used when 'content' is absent"),
		),
	)

	if readOnly {
		s.AddTool(uploadFileTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultError("Cannot upload files in read-only mode. Use --yolo flag to enable write operations."), nil
		})
	} else {
		s.AddTool(uploadFileTool, common.InstrumentedToolHandlerWithService(
			"sharepoint_upload_file", "drive", "upload", sc,
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return handleUploadFile(ctx, request, sc)
			}))
	}

	// Delete files tool (write operation, accepts one ID or a batch)
	deleteFilesTool := mcp.NewTool("sharepoint_delete_files",
		mcp.WithDescription("Delete one or more files or folders from a drive. Accepts a single item ID or a JSON array of IDs."),
		mcp.WithString("account",
			mcp.Description("Account ID (default: the first signed-in account)"),
		),
		mcp.WithString("driveId",
			mcp.Required(),
			mcp.Description("The drive ID"),
		),
		mcp.WithString("fileIds",
			mcp.Required(),
			mcp.Description("Item ID to delete, or a JSON array of item IDs"),
		),
	)

	if readOnly {
		s.AddTool(deleteFilesTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultError("Cannot delete files in read-only mode. Use --yolo flag to enable write operations."), nil
		})
	} else {
		s.AddTool(deleteFilesTool, common.InstrumentedToolHandlerWithService(
			"sharepoint_delete_files", "drive", "delete", sc,
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return handleDeleteFiles(ctx, request, sc)
			}))
	}

	return nil
}

func handleListFiles(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	driveID, ok := args["driveId"].(string)
	if !ok || driveID == "" {
		return mcp.NewToolResultError("driveId is required"), nil
	}
	folderID, _ := args["folderId"].(string)

	client, err := sc.GraphClientForAccount(common.GetAccountFromArgs(ctx, args))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	items, err := client.ListDriveItems(ctx, driveID, folderID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list files: %v", err)), nil
	}

	if len(items) == 0 {
		return mcp.NewToolResultText("The folder is empty."), nil
	}

	result := fmt.Sprintf("Found %d item(s):\n\n", len(items))
	for i, item := range items {
		result += fmt.Sprintf("%d. %s\n", i+1, formatDriveItem(item))
	}

	return mcp.NewToolResultText(result), nil
}

func handleGetFile(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	driveID, ok := args["driveId"].(string)
	if !ok || driveID == "" {
		return mcp.NewToolResultError("driveId is required"), nil
	}
	filePath, ok := args["filePath"].(string)
	if !ok || filePath == "" {
		return mcp.NewToolResultError("filePath is required"), nil
	}

	client, err := sc.GraphClientForAccount(common.GetAccountFromArgs(ctx, args))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	item, err := client.GetDriveItemByPath(ctx, driveID, filePath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get file: %v", err)), nil
	}

	result := fmt.Sprintf("Item: %s\n", formatDriveItem(*item))
	result += "\nUse the item ID with sharepoint_download_file to fetch its content.\n"
	return mcp.NewToolResultText(result), nil
}

func handleDownloadFile(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	driveID, ok := args["driveId"].(string)
	if !ok || driveID == "" {
		return mcp.NewToolResultError("driveId is required"), nil
	}
	fileID, ok := args["fileId"].(string)
	if !ok || fileID == "" {
		return mcp.NewToolResultError("fileId is required"), nil
	}

	client, err := sc.GraphClientForAccount(common.GetAccountFromArgs(ctx, args))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, err := client.DownloadFile(ctx, driveID, fileID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to download file: %v", err)), nil
	}

	if utf8.Valid(data) {
		return mcp.NewToolResultText(fmt.Sprintf("File content (%d bytes):\n\n%s", len(data), data)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Binary file content (%d bytes, base64):\n\n%s",
		len(data), base64.StdEncoding.EncodeToString(data))), nil
}

func handleUploadFile(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	driveID, ok := args["driveId"].(string)
	if !ok || driveID == "" {
		return mcp.NewToolResultError("driveId is required"), nil
	}
	folderID, ok := args["folderId"].(string)
	if !ok || folderID == "" {
		return mcp.NewToolResultError("folderId is required"), nil
	}
	fileName, ok := args["fileName"].(string)
	if !ok || fileName == "" {
		return mcp.NewToolResultError("fileName is required"), nil
	}

	var data []byte
	if content, ok := args["content"].(string); ok && content != "" {
		data = []byte(content)
	} else if encoded, ok := args["contentBase64"].(string); ok && encoded != "" {
		var err error
		data, err = base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("contentBase64 is not valid base64: %v", err)), nil
		}
	} else {
		return mcp.NewToolResultError("One of content or contentBase64 is required"), nil
	}

	client, err := sc.GraphClientForAccount(common.GetAccountFromArgs(ctx, args))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	item, err := client.UploadFile(ctx, driveID, folderID, fileName, data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to upload file: %v", err)), nil
	}

	result := fmt.Sprintf("File uploaded successfully:\n%s", formatDriveItem(*item))
	return mcp.NewToolResultText(result), nil
}

func handleDeleteFiles(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	driveID, ok := args["driveId"].(string)
	if !ok || driveID == "" {
		return mcp.NewToolResultError("driveId is required"), nil
	}

	fileIDs, err := batch.ParseStringOrArray(args["fileIds"], "fileIds")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client, err := sc.GraphClientForAccount(common.GetAccountFromArgs(ctx, args))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	results := batch.ProcessBatch(fileIDs, func(id string) (string, error) {
		if err := client.DeleteDriveItem(ctx, driveID, id); err != nil {
			return "", err
		}
		return "deleted", nil
	})

	return mcp.NewToolResultText(batch.FormatResults(results)), nil
}
