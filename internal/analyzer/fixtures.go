package analyzer

import "github.com/secaudit/secaudit-go/internal/domain"

// 扩展名分支
var (
	archiveExts = map[string]bool{"apk": true, "aab": true, "zip": true}
	binaryExts  = map[string]bool{"so": true, "dll": true, "dex": true, "bin": true, "dat": true, "exe": true, "o": true, "elf": true}
)

const constantsJava = `package com.target.app;

public final class Constants {
    public static final String API_BASE_URL = "https://api.target-app.com/v1/";
    public static final String API_KEY = "AIzaSyD-hardcoded-key-1234567890";
    public static final boolean DEBUG_MODE = true;
    public static final int MAX_LOGIN_ATTEMPTS = 5;

    private Constants() {}
}
`

const mainActivitySmali = `.class public Lcom/target/app/MainActivity;
.super Landroidx/appcompat/app/AppCompatActivity;
.source "MainActivity.java"

.method private isPremiumUser()Z
    .locals 1

    const/4 v0, 0x0

    return v0
.end method

.method private checkRoot()Z
    .locals 1

    invoke-static {}, Lcom/target/app/security/RootCheck;->isDeviceRooted()Z
    move-result v0

    return v0
.end method
`

const stringsXML = `<?xml version="1.0" encoding="utf-8"?>
<resources>
    <string name="app_name">Target App</string>
    <string name="premium_locked">Recurso disponível apenas para usuários Premium</string>
    <string name="root_detected">Dispositivo com root detectado. O app será encerrado.</string>
    <string name="server_secret">s3cr3t-t0k3n-pr0d</string>
</resources>
`

// mockFiles 内置的“反编译”样例，加载时复制
var mockFiles = []domain.VirtualFile{
	domain.NewVirtualFile("java/com/target/app/Constants.java", constantsJava),
	domain.NewVirtualFile("smali/com/target/app/MainActivity.smali", mainActivitySmali),
	domain.NewVirtualFile("res/values/strings.xml", stringsXML),
}

// MockFiles 返回样例的独立副本
func MockFiles() []domain.VirtualFile {
	return append([]domain.VirtualFile(nil), mockFiles...)
}
